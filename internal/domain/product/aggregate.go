package product

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/example/localmart/internal/actor"
	"github.com/example/localmart/internal/domain/aggregate"
	"github.com/example/localmart/internal/domain/errs"
	"github.com/example/localmart/internal/infrastructure/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const AggregateType = "Product"

// MaxPrice is the highest unit price a product may carry.
const MaxPrice = 10_000_000

var (
	ErrProductNotFound = fmt.Errorf("%w: product", errs.ErrNotFound)
	ErrNotStoreOwner   = fmt.Errorf("%w: product belongs to another store", errs.ErrForbidden)
	ErrNotPermitted    = fmt.Errorf("%w: only sellers and admins manage the catalog", errs.ErrForbidden)
	ErrInvalidPrice    = errs.Validation("price", "price must be positive")
	ErrPriceTooHigh    = errs.Validation("price", fmt.Sprintf("price must be at most %d", MaxPrice))
	ErrInvalidName     = errs.Validation("name", "name is required")
	ErrInvalidStore    = errs.Validation("store_id", "store_id is required")
)

type Product struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Price       int       `json:"price"`
	ImageURL    string    `json:"image_url,omitempty"`
	IsDeleted   bool      `json:"is_deleted,omitempty"`
	Version     int       `json:"version"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Draft carries the editable fields of a product.
type Draft struct {
	StoreID     string
	Name        string
	Description string
	Price       int
	ImageURL    string
}

func (d Draft) validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrInvalidName
	}
	if d.Price <= 0 {
		return ErrInvalidPrice
	}
	if d.Price > MaxPrice {
		return ErrPriceTooHigh
	}
	return nil
}

func (p *Product) GetID() string    { return p.ID }
func (p *Product) GetVersion() int  { return p.Version }
func (p *Product) SetVersion(v int) { p.Version = v }

func (p *Product) ApplyEvent(event store.Event) error {
	switch event.EventType {
	case EventProductCreated:
		var data ProductCreated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.ID = data.ProductID
		p.StoreID = data.StoreID
		p.Name = data.Name
		p.Description = data.Description
		p.Price = data.Price
		p.ImageURL = data.ImageURL
		p.CreatedAt = data.CreatedAt
		p.UpdatedAt = data.CreatedAt
	case EventProductUpdated:
		var data ProductUpdated
		if err := json.Unmarshal(event.Data, &data); err != nil {
			return err
		}
		p.Name = data.Name
		p.Description = data.Description
		p.Price = data.Price
		p.ImageURL = data.ImageURL
		p.UpdatedAt = data.UpdatedAt
	case EventProductDeleted:
		p.IsDeleted = true
	}
	p.Version = event.Version
	return nil
}

type Service struct {
	eventStore store.EventStoreInterface
	logger     *zap.Logger
}

func NewService(es store.EventStoreInterface, logger *zap.Logger) *Service {
	return &Service{eventStore: es, logger: logger.Named("product")}
}

// storeFor resolves which store p may write to. Sellers are pinned to their
// own store; admins name one in the draft.
func storeFor(p actor.Principal, requested string) (string, error) {
	type result struct {
		storeID string
		err     error
	}
	r := actor.Match(p,
		func(actor.Customer) result { return result{err: ErrNotPermitted} },
		func(s actor.Seller) result {
			if requested != "" && requested != s.StoreID {
				return result{err: ErrNotStoreOwner}
			}
			return result{storeID: s.StoreID}
		},
		func(actor.Admin) result {
			if requested == "" {
				return result{err: ErrInvalidStore}
			}
			return result{storeID: requested}
		},
		func(actor.System) result { return result{err: ErrNotPermitted} },
	)
	return r.storeID, r.err
}

func (s *Service) Create(ctx context.Context, p actor.Principal, d Draft) (*Product, error) {
	storeID, err := storeFor(p, d.StoreID)
	if err != nil {
		return nil, err
	}
	if err := d.validate(); err != nil {
		return nil, err
	}

	productID := uuid.New().String()
	event := ProductCreated{
		ProductID:   productID,
		StoreID:     storeID,
		Name:        d.Name,
		Description: d.Description,
		Price:       d.Price,
		ImageURL:    d.ImageURL,
		CreatedAt:   time.Now(),
	}

	stored, err := s.eventStore.Append(ctx, store.Record{
		AggregateID:     productID,
		AggregateType:   AggregateType,
		EventType:       EventProductCreated,
		ExpectedVersion: 0,
		Data:            event,
	})
	if err != nil {
		return nil, aggregate.AppendError(productID, 0, err)
	}

	product := &Product{}
	if err := product.ApplyEvent(*stored); err != nil {
		return nil, err
	}
	return product, nil
}

func (s *Service) Update(ctx context.Context, p actor.Principal, productID string, d Draft) (*Product, error) {
	if err := d.validate(); err != nil {
		return nil, err
	}
	product, err := s.loadOwned(ctx, p, productID)
	if err != nil {
		return nil, err
	}

	stored, err := s.eventStore.Append(ctx, store.Record{
		AggregateID:     productID,
		AggregateType:   AggregateType,
		EventType:       EventProductUpdated,
		ExpectedVersion: product.Version,
		Data: ProductUpdated{
			ProductID:   productID,
			StoreID:     product.StoreID,
			Name:        d.Name,
			Description: d.Description,
			Price:       d.Price,
			ImageURL:    d.ImageURL,
			UpdatedAt:   time.Now(),
		},
	})
	if err != nil {
		return nil, aggregate.AppendError(productID, product.Version, err)
	}
	if err := product.ApplyEvent(*stored); err != nil {
		return nil, err
	}

	if err := aggregate.MaybeCreateSnapshot(ctx, s.eventStore, product, AggregateType); err != nil {
		s.logger.Warn("failed to create snapshot", zap.String("product_id", productID), zap.Error(err))
	}
	return product, nil
}

func (s *Service) Delete(ctx context.Context, p actor.Principal, productID string) error {
	product, err := s.loadOwned(ctx, p, productID)
	if err != nil {
		return err
	}

	_, err = s.eventStore.Append(ctx, store.Record{
		AggregateID:     productID,
		AggregateType:   AggregateType,
		EventType:       EventProductDeleted,
		ExpectedVersion: product.Version,
		Data: ProductDeleted{
			ProductID: productID,
			StoreID:   product.StoreID,
			DeletedAt: time.Now(),
		},
	})
	return aggregate.AppendError(productID, product.Version, err)
}

func (s *Service) loadOwned(ctx context.Context, p actor.Principal, productID string) (*Product, error) {
	product, found, err := aggregate.LoadAggregate(ctx, s.eventStore, productID, func() *Product { return &Product{} })
	if err != nil {
		return nil, aggregate.LoadError(err)
	}
	if !found || product.IsDeleted {
		return nil, fmt.Errorf("%w %s", ErrProductNotFound, productID)
	}
	if _, err := storeFor(p, product.StoreID); err != nil {
		return nil, err
	}
	return product, nil
}
