package models

// WorkKind is the top-level branch of a report
type WorkKind string

const (
	WorkManual    WorkKind = "manual"
	WorkTechnique WorkKind = "technique"
)

// Location is a place where work is done
type Location struct {
	ID    int64  `json:"id" db:"id"`
	Name  string `json:"name" db:"name"`
	Group string `json:"group" db:"group_name"`
}

// Activity is a task a worker can report
type Activity struct {
	ID            int64    `json:"id" db:"id"`
	Name          string   `json:"name" db:"name"`
	Group         string   `json:"group" db:"group_name"`
	Kind          WorkKind `json:"kind" db:"work_kind"`
	MachineKindID int64    `json:"machine_kind_id,omitempty" db:"machine_kind_id"`
}

// MachineKind is a category of machinery (tractor, truck, ...)
type MachineKind struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
	// IsTruck marks kinds whose location is the loading point picked after the trip count
	IsTruck bool `json:"is_truck" db:"is_truck"`
}

// Machine is a concrete machine instance
type Machine struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	KindID int64  `json:"kind_id" db:"kind_id"`
}

// Crop is a harvested culture
type Crop struct {
	ID   int64  `json:"id" db:"id"`
	Name string `json:"name" db:"name"`
}
