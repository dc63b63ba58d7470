package nav

import (
	"io"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for testing. Reads drain ReadData;
// writes are captured in WrittenData.
type MockSerialPort struct {
	mu            sync.Mutex
	ReadData      []byte
	WrittenData   []byte
	ReadError     error
	WriteError    error
	CloseError    error
	Closed        bool
	ReadDelay     time.Duration
	ReadCallCount int
}

// NewMockSerialPort returns a port that will answer with replies
func NewMockSerialPort(replies string) *MockSerialPort {
	return &MockSerialPort{ReadData: []byte(replies)}
}

func (m *MockSerialPort) Read(p []byte) (n int, err error) {
	if m.ReadDelay > 0 {
		time.Sleep(m.ReadDelay)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ReadError != nil {
		return 0, m.ReadError
	}
	m.ReadCallCount++

	if len(m.ReadData) == 0 {
		return 0, io.EOF
	}

	n = copy(p, m.ReadData)
	m.ReadData = m.ReadData[n:]
	return n, nil
}

func (m *MockSerialPort) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.WriteError != nil {
		return 0, m.WriteError
	}
	m.WrittenData = append(m.WrittenData, p...)
	return len(p), nil
}

func (m *MockSerialPort) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Closed = true
	return m.CloseError
}

// Written returns everything written so far
func (m *MockSerialPort) Written() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return string(m.WrittenData)
}
