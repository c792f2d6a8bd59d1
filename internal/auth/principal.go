package auth

// Source tells where a principal's attributes came from.
type Source string

const (
	// SourceStore principals were loaded from the user store.
	SourceStore Source = "store"
	// SourceClaims principals were rebuilt from token claims because the store was unreachable.
	SourceClaims Source = "claims"
)

// Principal is the authenticated actor attached to a request.
type Principal interface {
	ID() string
	Username() string
	Email() string
	Role() Role
	Status() Status
	Source() Source
}

var (
	_ Principal = FullPrincipal{}
	_ Principal = ClaimsPrincipal{}
)

// FullPrincipal is backed by a user record.
type FullPrincipal struct {
	User User
}

func NewFullPrincipal(u User) FullPrincipal { return FullPrincipal{User: u} }

func (p FullPrincipal) ID() string       { return p.User.ID }
func (p FullPrincipal) Username() string { return p.User.Username }
func (p FullPrincipal) Email() string    { return p.User.Email }
func (p FullPrincipal) Role() Role       { return p.User.Role }
func (p FullPrincipal) Status() Status   { return p.User.Status }
func (p FullPrincipal) Source() Source   { return SourceStore }

// ClaimsPrincipal is the degraded variant built only from verified token claims.
type ClaimsPrincipal struct {
	Claims Claims
}

func NewClaimsPrincipal(c Claims) ClaimsPrincipal { return ClaimsPrincipal{Claims: c} }

func (p ClaimsPrincipal) ID() string       { return p.Claims.Subject }
func (p ClaimsPrincipal) Username() string { return p.Claims.Username }
func (p ClaimsPrincipal) Email() string    { return p.Claims.Email }
func (p ClaimsPrincipal) Role() Role       { return p.Claims.Role }
func (p ClaimsPrincipal) Status() Status   { return p.Claims.Status }
func (p ClaimsPrincipal) Source() Source   { return SourceClaims }

// PrincipalView is the JSON shape of a principal in API responses.
type PrincipalView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Role     Role   `json:"role"`
	Status   Status `json:"status"`
	Degraded bool   `json:"degraded,omitempty"`
}

// View renders p for API responses.
func View(p Principal) PrincipalView {
	return PrincipalView{
		ID:       p.ID(),
		Username: p.Username(),
		Email:    p.Email(),
		Role:     p.Role(),
		Status:   p.Status(),
		Degraded: p.Source() == SourceClaims,
	}
}
