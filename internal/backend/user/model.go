package user

type User struct {
	ID       string `json:"userId"`
	Name     string `json:"name"`
	Username string `json:"username"`
	PhoneNo  string `json:"phoneNo"`
	About    string `json:"about,omitempty"`
	Password string `json:"-"`
}

type RegisterRequest struct {
	Name     string `json:"name"`
	Username string `json:"username"`
	Password string `json:"password"`
	PhoneNo  string `json:"phoneNo"`
	About    string `json:"about"`
}

// LoginRequest accepts a username or a phone number as the identifier.
type LoginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type LoginResponse struct {
	Token  string `json:"token"`
	UserID string `json:"userId"`
}
