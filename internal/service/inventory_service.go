package service

import (
	"context"
	"fmt"
	"strings"

	"leftuber-api/internal/models"
	"leftuber-api/internal/util"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// InventoryService handles product listings and their stock
type InventoryService struct {
	store  ProductStore
	logger *zap.Logger
}

// NewInventoryService creates a new inventory service
func NewInventoryService(store ProductStore) *InventoryService {
	return &InventoryService{
		store:  store,
		logger: util.GetLogger(),
	}
}

// CreateProductRequest represents a request to list a product
type CreateProductRequest struct {
	Title         string           `json:"title"`
	Description   string           `json:"description"`
	Image         string           `json:"image"`
	Category      string           `json:"category"`
	OriginalPrice *decimal.Decimal `json:"originalPrice"`
	OfferPrice    *decimal.Decimal `json:"offerPrice"`
	Quantity      models.LooseInt  `json:"quantity"`
	PickupTime    string           `json:"pickupTime"`
}

// UpdateProductRequest represents a partial product update
type UpdateProductRequest struct {
	Title         models.Patch[string]          `json:"title"`
	Description   models.Patch[string]          `json:"description"`
	Image         models.Patch[string]          `json:"image"`
	Category      models.Patch[string]          `json:"category"`
	OriginalPrice models.Patch[decimal.Decimal] `json:"originalPrice"`
	OfferPrice    models.Patch[decimal.Decimal] `json:"offerPrice"`
	Quantity      models.Patch[models.LooseInt] `json:"quantity"`
	PickupTime    models.Patch[string]          `json:"pickupTime"`
}

// ListAvailable returns in-stock products matching filter
func (s *InventoryService) ListAvailable(ctx context.Context, filter models.ProductFilter) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListAvailable")
	defer span.End()

	filter.Category = strings.TrimSpace(filter.Category)
	if filter.Category == models.CategoryAll {
		filter.Category = ""
	}
	filter.Search = strings.TrimSpace(filter.Search)

	return s.store.ListAvailableProducts(ctx, filter)
}

// ListOwnedBy returns all products of a merchant, sold-out included
func (s *InventoryService) ListOwnedBy(ctx context.Context, merchantID string) ([]models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.ListOwnedBy")
	defer span.End()

	return s.store.ListProductsByMerchant(ctx, merchantID)
}

// Get records a view and returns the product
func (s *InventoryService) Get(ctx context.Context, productID string) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Get")
	defer span.End()

	if err := s.store.RecordProductView(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.GetProductByID(ctx, productID)
}

// Create lists a new product owned by the requesting merchant
func (s *InventoryService) Create(ctx context.Context, requester models.Identity, req *CreateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Create")
	defer span.End()

	if requester.Role != models.RoleMerchant {
		return nil, fmt.Errorf("%w: only merchants can create products", models.ErrForbidden)
	}

	title := strings.TrimSpace(req.Title)
	if title == "" || req.OfferPrice == nil {
		return nil, fmt.Errorf("%w: title and offer price required", models.ErrValidation)
	}
	if err := validatePrice("offerPrice", *req.OfferPrice); err != nil {
		return nil, err
	}

	product := &models.Product{
		ID:          uuid.New().String(),
		MerchantID:  requester.UserID,
		Title:       title,
		Description: req.Description,
		Image:       orDefault(req.Image, models.DefaultImage),
		OfferPrice:  *req.OfferPrice,
		Quantity:    models.DefaultQuantity,
		Category:    orDefault(req.Category, models.DefaultCategory),
		PickupTime:  orDefault(req.PickupTime, models.DefaultPickupTime),
	}

	if req.OriginalPrice != nil {
		if err := validatePrice("originalPrice", *req.OriginalPrice); err != nil {
			return nil, err
		}
		product.OriginalPrice = decimal.NewNullDecimal(*req.OriginalPrice)
	}
	if req.Quantity.Valid {
		if req.Quantity.Value < 0 {
			return nil, fmt.Errorf("%w: quantity cannot be negative", models.ErrValidation)
		}
		product.Quantity = req.Quantity.Value
	}
	if !models.ValidCategory(product.Category) {
		return nil, fmt.Errorf("%w: unknown category %q", models.ErrValidation, product.Category)
	}

	if err := s.store.CreateProduct(ctx, product); err != nil {
		return nil, fmt.Errorf("failed to create product: %w", err)
	}

	util.ProductsCreatedTotal.Inc()
	s.logger.Info("Product created",
		zap.String("product_id", product.ID),
		zap.String("merchant_id", product.MerchantID),
		zap.Int("quantity", product.Quantity))

	return product, nil
}

// Update applies a partial update to a product the requester owns
func (s *InventoryService) Update(ctx context.Context, requester models.Identity, productID string, req *UpdateProductRequest) (*models.Product, error) {
	ctx, span := util.StartSpan(ctx, "InventoryService.Update")
	defer span.End()

	existing, err := s.owned(ctx, requester, productID)
	if err != nil {
		return nil, err
	}

	patch, err := req.toPatch()
	if err != nil {
		return nil, err
	}
	if patch.Empty() {
		return existing, nil
	}

	updated, err := s.store.UpdateProduct(ctx, productID, patch)
	if err != nil {
		return nil, err
	}
	updated.Merchant = existing.Merchant

	s.logger.Info("Product updated", zap.String("product_id", productID))
	return updated, nil
}

// Delete removes a product the requester owns
func (s *InventoryService) Delete(ctx context.Context, requester models.Identity, productID string) error {
	ctx, span := util.StartSpan(ctx, "InventoryService.Delete")
	defer span.End()

	if _, err := s.owned(ctx, requester, productID); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, productID); err != nil {
		return err
	}

	s.logger.Info("Product deleted", zap.String("product_id", productID))
	return nil
}

func (s *InventoryService) owned(ctx context.Context, requester models.Identity, productID string) (*models.Product, error) {
	product, err := s.store.GetProductByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if product.MerchantID != requester.UserID {
		return nil, fmt.Errorf("%w: product %s belongs to another merchant", models.ErrForbidden, productID)
	}
	return product, nil
}

func (r *UpdateProductRequest) toPatch() (models.ProductPatch, error) {
	var patch models.ProductPatch

	if r.Title.Set {
		title := strings.TrimSpace(r.Title.Value)
		if title == "" {
			return patch, fmt.Errorf("%w: title cannot be blank", models.ErrValidation)
		}
		patch.Title = models.SetTo(title)
	}
	patch.Description = r.Description
	if r.Image.Set {
		patch.Image = models.SetTo(orDefault(r.Image.Value, models.DefaultImage))
	}
	if r.Category.Set {
		if !models.ValidCategory(r.Category.Value) {
			return patch, fmt.Errorf("%w: unknown category %q", models.ErrValidation, r.Category.Value)
		}
		patch.Category = r.Category
	}
	if r.OriginalPrice.Set {
		if err := validatePrice("originalPrice", r.OriginalPrice.Value); err != nil {
			return patch, err
		}
		patch.OriginalPrice = models.SetTo(decimal.NewNullDecimal(r.OriginalPrice.Value))
	}
	if r.OfferPrice.Set {
		if err := validatePrice("offerPrice", r.OfferPrice.Value); err != nil {
			return patch, err
		}
		patch.OfferPrice = r.OfferPrice
	}
	if r.Quantity.Set {
		q := r.Quantity.Value
		if !q.Valid || q.Value < 0 {
			return patch, fmt.Errorf("%w: quantity must be a non-negative number", models.ErrValidation)
		}
		patch.Quantity = models.SetTo(q.Value)
	}
	if r.PickupTime.Set {
		patch.PickupTime = models.SetTo(orDefault(r.PickupTime.Value, models.DefaultPickupTime))
	}

	return patch, nil
}

func validatePrice(field string, price decimal.Decimal) error {
	if price.IsNegative() {
		return fmt.Errorf("%w: %s cannot be negative", models.ErrValidation, field)
	}
	return nil
}

func orDefault(v, def string) string {
	if v = strings.TrimSpace(v); v == "" {
		return def
	}
	return v
}
