// =============================================================================
// 🗄️ MockHistoryStore - 执行历史存储模拟实现
// =============================================================================
// 用于测试的 workflow.HistoryStore，支持错误注入和调用记录
//
// 使用方法:
//
//	store := mocks.NewMockHistoryStore().WithSaveError(errors.New("down"))
//	engine := workflow.NewEngine(workflow.WithHistoryStore(store))
// =============================================================================
package mocks

import (
	"context"
	"fmt"
	"sync"

	"github.com/BaSui01/nodegraph/workflow"
)

var _ workflow.HistoryStore = (*MockHistoryStore)(nil)

// MockHistoryStore 是执行历史存储的模拟实现
type MockHistoryStore struct {
	mu sync.RWMutex

	histories map[string]*workflow.ExecutionHistory
	order     []string

	// 错误注入
	saveErr error
	getErr  error

	// 调用记录
	saveCalls int
	getCalls  int
	listCalls int
}

// NewMockHistoryStore 创建新的 MockHistoryStore
func NewMockHistoryStore() *MockHistoryStore {
	return &MockHistoryStore{histories: make(map[string]*workflow.ExecutionHistory)}
}

// WithSaveError 设置 Save 返回的错误
func (m *MockHistoryStore) WithSaveError(err error) *MockHistoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveErr = err
	return m
}

// WithGetError 设置 Get 返回的错误
func (m *MockHistoryStore) WithGetError(err error) *MockHistoryStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getErr = err
	return m
}

// Save 实现 workflow.HistoryStore
func (m *MockHistoryStore) Save(_ context.Context, h *workflow.ExecutionHistory) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saveCalls++
	if m.saveErr != nil {
		return m.saveErr
	}
	if _, ok := m.histories[h.ExecutionID]; !ok {
		m.order = append(m.order, h.ExecutionID)
	}
	m.histories[h.ExecutionID] = h
	return nil
}

// Get 实现 workflow.HistoryStore
func (m *MockHistoryStore) Get(_ context.Context, executionID string) (*workflow.ExecutionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.getCalls++
	if m.getErr != nil {
		return nil, m.getErr
	}
	h, ok := m.histories[executionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", workflow.ErrHistoryNotFound, executionID)
	}
	return h, nil
}

// ListByWorkflow 按保存顺序返回
func (m *MockHistoryStore) ListByWorkflow(_ context.Context, name string) ([]*workflow.ExecutionHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	var result []*workflow.ExecutionHistory
	for _, id := range m.order {
		if h := m.histories[id]; h.Workflow == name {
			result = append(result, h)
		}
	}
	return result, nil
}

// =============================================================================
// 📊 调用记录
// =============================================================================

// SaveCalls 返回 Save 调用次数
func (m *MockHistoryStore) SaveCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saveCalls
}

// GetCalls 返回 Get 调用次数
func (m *MockHistoryStore) GetCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getCalls
}

// ListCalls 返回 ListByWorkflow 调用次数
func (m *MockHistoryStore) ListCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listCalls
}

// Len 返回已保存的历史数量
func (m *MockHistoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.histories)
}
