package mocks

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/field-worklog-bot/internal/sink"
)

var _ sink.Sink = (*MockSink)(nil)

var rowRef = regexp.MustCompile(`^[A-Z]+(\d+)`)

// MockSheet is one in-memory spreadsheet. Rows[0] is row 1.
type MockSheet struct {
	Name       string
	Parent     string
	Tab        string
	Rows       [][]string
	HeaderBold bool
}

// MockSink is an in-memory spreadsheet backend with call counters
type MockSink struct {
	mu     sync.Mutex
	Sheets map[string]*MockSheet
	nextID int

	Creates int
	Reads   int
	Writes  int // WriteHeader, WriteRange, DeleteRows and Rename calls
	Deletes int

	// Fail, when set, is consulted before every call; a non-nil error is returned as is
	Fail func(op, id string) error
}

func NewMockSink() *MockSink {
	return &MockSink{Sheets: make(map[string]*MockSheet)}
}

// Calls is the total of remote calls made
func (m *MockSink) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates + m.Reads + m.Writes
}

// WriteCalls is the number of mutating calls, object creation included
func (m *MockSink) WriteCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.Creates + m.Writes
}

// ResetCounters zeroes every call counter
func (m *MockSink) ResetCounters() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates, m.Reads, m.Writes, m.Deletes = 0, 0, 0, 0
}

// Sheet returns a copy of a sheet's rows
func (m *MockSink) Sheet(id string) *MockSheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Sheets[id]
	if !ok {
		return nil
	}
	c := *s
	c.Rows = make([][]string, len(s.Rows))
	for i, r := range s.Rows {
		c.Rows[i] = append([]string(nil), r...)
	}
	return &c
}

func (m *MockSink) fail(op, id string) error {
	if m.Fail != nil {
		return m.Fail(op, id)
	}
	return nil
}

func (m *MockSink) sheet(id string) (*MockSheet, error) {
	s, ok := m.Sheets[id]
	if !ok {
		return nil, fmt.Errorf("no such sheet %q", id)
	}
	return s, nil
}

func (m *MockSink) CreateObject(ctx context.Context, name, parent string) (sink.Object, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Creates++
	if err := m.fail("create_object", ""); err != nil {
		return sink.Object{}, err
	}
	m.nextID++
	id := "sheet-" + strconv.Itoa(m.nextID)
	m.Sheets[id] = &MockSheet{Name: name, Parent: parent, Tab: "Sheet1"}
	return sink.Object{ID: id, URL: "https://sheets.test/" + id}, nil
}

func (m *MockSink) WriteHeader(ctx context.Context, id string, header []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if err := m.fail("write_header", id); err != nil {
		return err
	}
	s, err := m.sheet(id)
	if err != nil {
		return err
	}
	m.setRow(s, 1, header)
	s.HeaderBold = true
	return nil
}

func (m *MockSink) ReadRange(ctx context.Context, id, a1 string) ([][]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reads++
	if err := m.fail("read_range", id); err != nil {
		return nil, err
	}
	s, err := m.sheet(id)
	if err != nil {
		return nil, err
	}
	if a1 == sink.UsedRowsRange {
		out := make([][]string, len(s.Rows))
		for i, r := range s.Rows {
			if len(r) > 0 {
				out[i] = []string{r[0]}
			}
		}
		return out, nil
	}
	row, err := startRow(a1)
	if err != nil {
		return nil, err
	}
	if row > len(s.Rows) {
		return nil, nil
	}
	return [][]string{append([]string(nil), s.Rows[row-1]...)}, nil
}

func (m *MockSink) WriteRange(ctx context.Context, id, a1 string, rows [][]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if err := m.fail("write_range", id); err != nil {
		return err
	}
	s, err := m.sheet(id)
	if err != nil {
		return err
	}
	row, err := startRow(a1)
	if err != nil {
		return err
	}
	for i, r := range rows {
		m.setRow(s, row+i, r)
	}
	return nil
}

func (m *MockSink) DeleteRows(ctx context.Context, id string, start, end int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	m.Deletes++
	if err := m.fail("delete_rows", id); err != nil {
		return err
	}
	s, err := m.sheet(id)
	if err != nil {
		return err
	}
	if start < 1 || end < start || end > len(s.Rows) {
		return fmt.Errorf("rows %d..%d out of range in %q", start, end, id)
	}
	s.Rows = append(s.Rows[:start-1], s.Rows[end:]...)
	return nil
}

func (m *MockSink) Rename(ctx context.Context, id, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Writes++
	if err := m.fail("rename", id); err != nil {
		return err
	}
	s, err := m.sheet(id)
	if err != nil {
		return err
	}
	s.Tab = name
	return nil
}

func (m *MockSink) setRow(s *MockSheet, row int, values []string) {
	for len(s.Rows) < row {
		s.Rows = append(s.Rows, nil)
	}
	s.Rows[row-1] = append([]string(nil), values...)
}

func startRow(a1 string) (int, error) {
	match := rowRef.FindStringSubmatch(a1)
	if match == nil {
		return 0, fmt.Errorf("unsupported range %q", a1)
	}
	return strconv.Atoi(match[1])
}
