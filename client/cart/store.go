// Package cart keeps the guest cart in local storage and synchronises it with
// the server cart once the user is authenticated.
package cart

import (
	"errors"
	"math"

	"github.com/shopswift/storefront/client/api"
	"github.com/shopswift/storefront/client/storage"
	"go.uber.org/zap"
)

type Line = api.CartLine

// MaxQuantity is the largest quantity a line can hold, matching the server's
// integer column.
const MaxQuantity = math.MaxInt32

var (
	ErrInvalidQuantity = errors.New("cart: quantity must be between 1 and 2147483647")
	ErrClosed          = errors.New("cart: synchronizer closed")
)

// Store is the guest cart persisted under storage.KeyGuestCart.
type Store struct {
	st     storage.Store
	logger *zap.Logger
}

func NewStore(st storage.Store, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{st: st, logger: logger}
}

// Load returns the stored lines. A missing or unreadable value is an empty cart.
func (s *Store) Load() []Line {
	var lines []Line
	if _, err := storage.GetJSON(s.st, storage.KeyGuestCart, &lines); err != nil {
		s.logger.Warn("Discarding unreadable guest cart", zap.Error(err))
		return []Line{}
	}
	return sanitize(lines)
}

func (s *Store) Save(lines []Line) error {
	if lines == nil {
		lines = []Line{}
	}
	return storage.SetJSON(s.st, storage.KeyGuestCart, lines)
}

// Clear removes the cart and its pending marker.
func (s *Store) Clear() error {
	return errors.Join(s.st.Delete(storage.KeyGuestCart), s.st.Delete(storage.KeyCartPending))
}

// Pending reports whether an earlier run left changes that were never pushed.
func (s *Store) Pending() bool {
	v, err := storage.GetString(s.st, storage.KeyCartPending)
	return err == nil && v == "true"
}

func (s *Store) SetPending(pending bool) error {
	if pending {
		return storage.SetString(s.st, storage.KeyCartPending, "true")
	}
	return s.st.Delete(storage.KeyCartPending)
}

// sanitize drops invalid lines and merges duplicates so the cart holds at
// most one line per product with a quantity in [1, MaxQuantity]. Merged and
// oversized quantities are capped.
func sanitize(lines []Line) []Line {
	out := make([]Line, 0, len(lines))
	index := make(map[uint]int, len(lines))
	for _, l := range lines {
		if l.ProductID == 0 || l.Quantity < 1 {
			continue
		}
		if l.Quantity > MaxQuantity {
			l.Quantity = MaxQuantity
		}
		if i, ok := index[l.ProductID]; ok {
			out[i].Quantity = min(out[i].Quantity+l.Quantity, MaxQuantity)
			continue
		}
		index[l.ProductID] = len(out)
		out = append(out, l)
	}
	return out
}

func validQuantity(qty int) bool {
	return qty >= 1 && qty <= MaxQuantity
}

// addLine fails with ErrInvalidQuantity, leaving lines untouched, when the
// resulting quantity would exceed MaxQuantity.
func addLine(lines []Line, p api.Product, qty int) ([]Line, error) {
	if !validQuantity(qty) {
		return lines, ErrInvalidQuantity
	}
	for i := range lines {
		if lines[i].ProductID == p.ID {
			if lines[i].Quantity > MaxQuantity-qty {
				return lines, ErrInvalidQuantity
			}
			lines[i].Quantity += qty
			return lines, nil
		}
	}
	return append(lines, Line{
		ProductID:    p.ID,
		ProductName:  p.Name,
		ProductPrice: p.Price,
		ProductImage: p.Image,
		Quantity:     qty,
	}), nil
}

func removeLine(lines []Line, productID uint) []Line {
	out := lines[:0]
	for _, l := range lines {
		if l.ProductID != productID {
			out = append(out, l)
		}
	}
	return out
}

func setQuantity(lines []Line, productID uint, qty int) []Line {
	for i := range lines {
		if lines[i].ProductID == productID {
			lines[i].Quantity = qty
		}
	}
	return lines
}

func toSyncItems(lines []Line) []api.SyncItem {
	items := make([]api.SyncItem, 0, len(lines))
	for _, l := range lines {
		items = append(items, api.SyncItem{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	return items
}

func clone(lines []Line) []Line {
	return append(make([]Line, 0, len(lines)), lines...)
}
