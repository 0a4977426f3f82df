package transport

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID           string   `json:"id"`
	UserName     string   `json:"userName"`
	Email        string   `json:"email"`
	Roles        []string `json:"roles"`
	IsVerified   bool     `json:"isVerified"`
	JwtToken     string   `json:"jwtToken"`
	RefreshToken string   `json:"refreshToken"`
}

type RefreshRequest struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	ID       string `json:"id"`
	UserName string `json:"userName"`
	Email    string `json:"email"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}
