package gateway

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// CustomStore holds creator-registered custom products, the nonces consumed
// creating them, and the per-IP creation rate ledger. All state is
// in-memory; products expire by TTL and every index is purged lazily on
// access. One mutex guards everything so quota and replay checks happen in
// the same critical section as the insert they guard.
type CustomStore struct {
	mu  sync.Mutex
	cfg CustomProductConfig
	now func() time.Time

	byID      map[string]*Product
	byCreator map[string]map[string]struct{} // lowercase creator -> product ids
	nonces    map[string]map[string]int64    // lowercase creator -> nonce -> expiry unix
	createLog map[string][]int64             // client ip -> creation attempt unix times
}

func NewCustomStore(cfg CustomProductConfig, now func() time.Time) *CustomStore {
	if now == nil {
		now = time.Now
	}
	return &CustomStore{
		cfg:       cfg,
		now:       now,
		byID:      make(map[string]*Product),
		byCreator: make(map[string]map[string]struct{}),
		nonces:    make(map[string]map[string]int64),
		createLog: make(map[string][]int64),
	}
}

// RecordCreateAttempt counts a creation attempt against the caller's IP and
// rejects it when the sliding-window limit is hit. Every attempt counts,
// including ones that later fail validation.
func (s *CustomStore) RecordCreateAttempt(ip string) *PaymentError {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	windowStart := now - int64(s.cfg.CreateRateWindow/time.Second)

	attempts := s.createLog[ip][:0]
	for _, at := range s.createLog[ip] {
		if at > windowStart {
			attempts = append(attempts, at)
		}
	}
	if len(attempts) >= s.cfg.CreateMaxPerIP {
		s.createLog[ip] = attempts
		return tooManyRequests(ErrCodeRateLimited, "too many product creation attempts, try again later")
	}
	s.createLog[ip] = append(attempts, now)
	return nil
}

// Precheck rejects a creation early when the nonce was already consumed or
// a quota is full. It takes no reservation; Commit re-checks under the same
// lock before inserting.
func (s *CustomStore) Precheck(creator, nonce string) *PaymentError {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now().Unix())
	return s.admitLocked(strings.ToLower(creator), nonce)
}

// Commit registers a product and consumes the creation nonce atomically.
// The nonce stays consumed until nonceExpiry so an expired signature cannot
// be replayed after its product lapses.
func (s *CustomStore) Commit(product *Product, nonce string, nonceExpiry int64) *PaymentError {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().Unix()
	s.purgeLocked(now)

	creatorKey := strings.ToLower(product.Creator)
	if perr := s.admitLocked(creatorKey, nonce); perr != nil {
		return perr
	}

	s.byID[product.ID] = product
	ids := s.byCreator[creatorKey]
	if ids == nil {
		ids = make(map[string]struct{})
		s.byCreator[creatorKey] = ids
	}
	ids[product.ID] = struct{}{}

	used := s.nonces[creatorKey]
	if used == nil {
		used = make(map[string]int64)
		s.nonces[creatorKey] = used
	}
	used[nonce] = nonceExpiry
	return nil
}

// admitLocked applies the replay and quota rules. Caller holds the lock.
func (s *CustomStore) admitLocked(creatorKey, nonce string) *PaymentError {
	if _, used := s.nonces[creatorKey][nonce]; used {
		return badRequest(ErrCodeNonceReplay, "nonce already used for a product creation")
	}
	if len(s.byCreator[creatorKey]) >= s.cfg.MaxPerCreator {
		return tooManyRequests(ErrCodeQuotaExceeded, "creator product limit reached")
	}
	if len(s.byID) >= s.cfg.MaxGlobal {
		return tooManyRequests(ErrCodeQuotaExceeded, "global product limit reached")
	}
	return nil
}

// Get returns a live custom product, or nil if unknown or expired.
func (s *CustomStore) Get(id string) *Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now().Unix())
	return s.byID[id]
}

// ListByCreator returns a creator's live products sorted by id.
func (s *CustomStore) ListByCreator(creator string) []*Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now().Unix())

	ids := s.byCreator[strings.ToLower(creator)]
	products := make([]*Product, 0, len(ids))
	for id := range ids {
		products = append(products, s.byID[id])
	}
	sort.Slice(products, func(i, j int) bool { return products[i].ID < products[j].ID })
	return products
}

// Count returns the number of live custom products.
func (s *CustomStore) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.purgeLocked(s.now().Unix())
	return len(s.byID)
}

// purgeLocked drops expired products, lapsed nonces, and stale rate-log
// entries. Caller holds the lock.
func (s *CustomStore) purgeLocked(now int64) {
	for id, product := range s.byID {
		if product.ExpiresAt <= now {
			delete(s.byID, id)
			creatorKey := strings.ToLower(product.Creator)
			if ids := s.byCreator[creatorKey]; ids != nil {
				delete(ids, id)
				if len(ids) == 0 {
					delete(s.byCreator, creatorKey)
				}
			}
		}
	}

	for creatorKey, used := range s.nonces {
		for nonce, expiry := range used {
			if expiry <= now {
				delete(used, nonce)
			}
		}
		if len(used) == 0 {
			delete(s.nonces, creatorKey)
		}
	}

	windowStart := now - int64(s.cfg.CreateRateWindow/time.Second)
	for ip, attempts := range s.createLog {
		kept := attempts[:0]
		for _, at := range attempts {
			if at > windowStart {
				kept = append(kept, at)
			}
		}
		if len(kept) == 0 {
			delete(s.createLog, ip)
		} else {
			s.createLog[ip] = kept
		}
	}
}
