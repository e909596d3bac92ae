package monitor

// RegisterDto is the request body behind both the single and batch register
// endpoints.
type RegisterDto struct {
	ConvexURLID  string `json:"convexUrlId" validate:"required" example:"url_abc123"`
	ConvexUserID string `json:"convexUserId" validate:"required" example:"user_abc123"`
	LongURL      string `json:"longUrl" validate:"required,url" example:"https://example.com/a/very/long/path"`
	ShortURL     string `json:"shortUrl" example:"https://short.link/abc"`
	IntervalMs   *int64 `json:"intervalMs" validate:"omitempty,min=1000" example:"60000"`
	Environment  *string `json:"environment" validate:"omitempty,oneof=dev prod" example:"prod"`
}

// BatchRegisterDto registers many links in one request.
type BatchRegisterDto struct {
	Links []RegisterDto `json:"links" validate:"required,min=1,dive"`
}

// ResponseDto is the shape returned from the Admin API for a single monitor.
type ResponseDto struct {
	ID                  string  `json:"id"`
	ConvexURLID         string  `json:"convexUrlId"`
	ConvexUserID        string  `json:"convexUserId"`
	LongURL             string  `json:"longUrl"`
	ShortURL            string  `json:"shortUrl"`
	Environment         string  `json:"environment"`
	IntervalMs          int64   `json:"intervalMs"`
	IsActive            bool    `json:"isActive"`
	CurrentStatus       string  `json:"currentStatus"`
	LastStatusCode      int     `json:"lastStatusCode"`
	LastLatencyMs       int     `json:"lastLatencyMs"`
	ConsecutiveFailures int     `json:"consecutiveFailures"`
}

// ToResponseDto projects the domain entity into its wire shape.
func ToResponseDto(m *Monitor) ResponseDto {
	return ResponseDto{
		ID:                  m.ID,
		ConvexURLID:         m.ConvexURLID,
		ConvexUserID:        m.ConvexUserID,
		LongURL:             m.LongURL,
		ShortURL:            m.ShortURL,
		Environment:         string(m.Environment),
		IntervalMs:          m.IntervalMs,
		IsActive:            m.IsActive,
		CurrentStatus:       string(m.CurrentStatus),
		LastStatusCode:      m.LastStatusCode,
		LastLatencyMs:       m.LastLatencyMs,
		ConsecutiveFailures: m.ConsecutiveFailures,
	}
}

// ToInput converts the wire DTO into the service-layer RegisterInput.
func (d RegisterDto) ToInput() RegisterInput {
	return RegisterInput{
		ConvexURLID:  d.ConvexURLID,
		ConvexUserID: d.ConvexUserID,
		LongURL:      d.LongURL,
		ShortURL:     d.ShortURL,
		IntervalMs:   d.IntervalMs,
		Environment:  d.Environment,
	}
}
