package payment

import (
	"context"
	"sync"
	"time"

	"netgiropay/internal/models"
)

// memStore is an in-memory OrderStore. Transactions are not rolled back;
// tests that need rollback use the gorm repository.
type memStore struct {
	mu         sync.Mutex
	orders     map[uint]*models.Order
	notes      map[uint][]string
	flags      map[uint]models.PaymentFlag
	validated  map[uint]time.Time
	flagWrites map[uint]int
	completes  map[uint]int
	cartEmpty  map[uint]int
	noteErr    error
}

func newMemStore(orders ...*models.Order) *memStore {
	s := &memStore{
		orders:     map[uint]*models.Order{},
		notes:      map[uint][]string{},
		flags:      map[uint]models.PaymentFlag{},
		validated:  map[uint]time.Time{},
		flagWrites: map[uint]int{},
		completes:  map[uint]int{},
		cartEmpty:  map[uint]int{},
	}
	for _, o := range orders {
		s.orders[o.ID] = o
	}
	return s
}

func (s *memStore) FindOrder(_ context.Context, id uint) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	cp := *o
	return &cp, nil
}

func (s *memStore) SetTransactionID(_ context.Context, id uint, tx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id].TransactionID = tx
	return nil
}

func (s *memStore) UpdateStatus(_ context.Context, id uint, status models.OrderStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders[id].Status = status
	return nil
}

func (s *memStore) PaymentComplete(_ context.Context, id uint, tx string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[id]
	if o.Status.NeedsPayment() {
		o.Status = models.OrderStatusProcessing
		now := time.Now()
		o.DatePaid = &now
	}
	o.TransactionID = tx
	s.completes[id]++
	return nil
}

func (s *memStore) AddNote(_ context.Context, id uint, note string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.noteErr != nil {
		return s.noteErr
	}
	s.notes[id] = append(s.notes[id], note)
	return nil
}

func (s *memStore) PaymentFlag(_ context.Context, id uint) (models.PaymentFlag, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags[id], nil
}

func (s *memStore) SetPaymentFlag(_ context.Context, id uint, flag models.PaymentFlag) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flags[id] = flag
	s.flagWrites[id]++
	return nil
}

func (s *memStore) CallbackValidated(_ context.Context, id uint) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.validated[id]
	return ok, nil
}

func (s *memStore) MarkCallbackValidated(_ context.Context, id uint, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.validated[id]; ok {
		return false, nil
	}
	s.validated[id] = at
	return true, nil
}

func (s *memStore) EmptyCart(_ context.Context, id uint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cartEmpty[id]++
	return nil
}

func (s *memStore) OrdersByFlag(_ context.Context, flag models.PaymentFlag, limit int) ([]models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Order
	for id, f := range s.flags {
		if f == flag && (limit <= 0 || len(out) < limit) {
			out = append(out, *s.orders[id])
		}
	}
	return out, nil
}

func (s *memStore) Transaction(_ context.Context, fn func(OrderStore) error) error {
	return fn(s)
}

func (s *memStore) order(id uint) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.orders[id]
}

func (s *memStore) notesOf(id uint) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes[id]...)
}
