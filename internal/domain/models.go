package domain

import (
	"slices"
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleOwner   = "owner"
	RoleManager = "manager"
	RoleCashier = "cashier"
)

type Store struct {
	ID            string    `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	TIN           string    `json:"tin"`
	MachineSerial string    `json:"machine_serial"`
	PermitNumber  string    `json:"permit_number"`
	VATRegistered bool      `json:"vat_registered"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
}

type StoreCreateRequest struct {
	Code          string `json:"code"`
	Name          string `json:"name"`
	Address       string `json:"address"`
	TIN           string `json:"tin"`
	MachineSerial string `json:"machine_serial"`
	PermitNumber  string `json:"permit_number"`
	VATRegistered bool   `json:"vat_registered"`
}

type StoreUpdateRequest struct {
	Name          *string `json:"name,omitempty"`
	Address       *string `json:"address,omitempty"`
	TIN           *string `json:"tin,omitempty"`
	MachineSerial *string `json:"machine_serial,omitempty"`
	PermitNumber  *string `json:"permit_number,omitempty"`
	VATRegistered *bool   `json:"vat_registered,omitempty"`
	Active        *bool   `json:"active,omitempty"`
}

type Category struct {
	ID        string    `json:"id"`
	StoreID   string    `json:"store_id"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type CategoryCreateRequest struct {
	StoreID string `json:"store_id"`
	Name    string `json:"name"`
}

type Product struct {
	ID          string    `json:"id"`
	StoreID     string    `json:"store_id"`
	SKU         string    `json:"sku"`
	Name        string    `json:"name"`
	CategoryID  string    `json:"category_id,omitempty"`
	PriceCents  int64     `json:"price_cents"`
	RecipeID    string    `json:"recipe_id,omitempty"`
	Active      bool      `json:"active"`
	IsAvailable bool      `json:"is_available"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

type ProductCreateRequest struct {
	StoreID    string `json:"store_id"`
	SKU        string `json:"sku"`
	Name       string `json:"name"`
	CategoryID string `json:"category_id"`
	PriceCents int64  `json:"price_cents"`
	RecipeID   string `json:"recipe_id"`
}

type ProductUpdateRequest struct {
	Name       *string `json:"name,omitempty"`
	CategoryID *string `json:"category_id,omitempty"`
	PriceCents *int64  `json:"price_cents,omitempty"`
	RecipeID   *string `json:"recipe_id,omitempty"`
	Active     *bool   `json:"active,omitempty"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string   `json:"access_token"`
	Role        string   `json:"role"`
	StoreIDs    []string `json:"store_ids"`
	ExpiresAt   string   `json:"expires_at"`
}

// Actor is the authenticated caller carried in request contexts.
type Actor struct {
	Username string
	Role     string
	StoreIDs []string
}

// AllStores reports whether the actor is scoped to the whole chain.
func (a Actor) AllStores() bool {
	return a.Role == RoleAdmin || a.Role == RoleOwner
}

func (a Actor) CanAccessStore(storeID string) bool {
	if a.AllStores() {
		return true
	}
	return slices.Contains(a.StoreIDs, storeID)
}

// HasRole reports whether the actor holds one of roles. Admin satisfies every check.
func (a Actor) HasRole(roles ...string) bool {
	if a.Role == RoleAdmin {
		return true
	}
	return slices.Contains(roles, a.Role)
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	StoreIDs  []string  `json:"store_ids"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type UserCreateRequest struct {
	Username string   `json:"username"`
	Password string   `json:"password"`
	Role     string   `json:"role"`
	StoreIDs []string `json:"store_ids"`
}

type UserView struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	StoreIDs  []string  `json:"store_ids"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	StoreID       string    `json:"store_id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}
