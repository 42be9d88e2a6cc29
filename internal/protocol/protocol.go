// Package protocol defines the newline-delimited JSON wire format spoken
// between clients and the server: one request frame per line, answered by
// exactly one response frame.
package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/go-playground/validator/v10"
)

// Commands accepted by the server.
const (
	CmdLogin             = "LOGIN"
	CmdRegister          = "REGISTER"
	CmdGetSports         = "GET_SPORTS"
	CmdGetCities         = "GET_CITIES"
	CmdGetCentres        = "GET_CENTRES"
	CmdGetTerrains       = "GET_TERRAINS"
	CmdCheckAvailability = "CHECK_AVAILABILITY"
	CmdCreateReservation = "CREATE_RESERVATION"
	CmdGetMyReservations = "GET_MY_RESERVATIONS"
	CmdGetSubscriptions  = "GET_SUBSCRIPTIONS"
	CmdSubscribe         = "SUBSCRIBE"
	CmdCancelReservation = "CANCEL_RESERVATION"
	CmdGetStats          = "GET_STATS"
	CmdDisconnect        = "DISCONNECT"

	// Admin-only commands.
	CmdBlockTerrain       = "BLOCK_TERRAIN"
	CmdGetAllTerrains     = "GET_ALL_TERRAINS"
	CmdGetAllReservations = "GET_ALL_RESERVATIONS"
)

// Response statuses.
const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

// Request is a single command frame.
type Request struct {
	Command string          `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response is a single reply frame.
type Response struct {
	Status  string `json:"status"`
	Payload any    `json:"payload,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success wraps a payload in a SUCCESS response.
func Success(payload any) Response {
	return Response{Status: StatusSuccess, Payload: payload}
}

// Error wraps a reason in an ERROR response.
func Error(reason string) Response {
	return Response{Status: StatusError, Error: reason}
}

var validate = validator.New()

// DecodePayload unmarshals the request payload into v and validates it.
func (r *Request) DecodePayload(v any) error {
	if len(r.Payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(r.Payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}

// LoginRequest carries credentials.
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// RegisterRequest carries a new account.
type RegisterRequest struct {
	Username  string `json:"username" validate:"required,alphanum,min=3,max=20"`
	Email     string `json:"email" validate:"required,email"`
	Password  string `json:"password" validate:"required,min=6"`
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name"`
	Phone     string `json:"phone"`
}

// SlotRequest identifies a terrain time slot. Used by both availability
// checks and reservation requests.
type SlotRequest struct {
	TerrainID int64  `json:"terrain_id" validate:"required,gt=0"`
	Date      string `json:"date" validate:"required"`  // YYYY-MM-DD
	Start     string `json:"start" validate:"required"` // HH:MM
	End       string `json:"end" validate:"required"`   // HH:MM
}

// Interval parses the slot into concrete times on the requested date.
// Interval validity (start < end) is the coordinator's call; this only
// rejects malformed fields.
func (s *SlotRequest) Interval() (date, start, end time.Time, err error) {
	date, err = time.Parse("2006-01-02", s.Date)
	if err != nil {
		return date, start, end, fmt.Errorf("invalid date; expected YYYY-MM-DD")
	}
	start, err = time.Parse("2006-01-02 15:04", s.Date+" "+s.Start)
	if err != nil {
		return date, start, end, fmt.Errorf("invalid start time; expected HH:MM")
	}
	end, err = time.Parse("2006-01-02 15:04", s.Date+" "+s.End)
	if err != nil {
		return date, start, end, fmt.Errorf("invalid end time; expected HH:MM")
	}
	return date, start, end, nil
}

// CentresRequest filters centres by city.
type CentresRequest struct {
	CityID int64 `json:"city_id" validate:"required,gt=0"`
}

// TerrainsRequest filters terrains by sport and centre.
type TerrainsRequest struct {
	SportID  int64 `json:"sport_id" validate:"required,gt=0"`
	CentreID int64 `json:"centre_id" validate:"required,gt=0"`
}

// CancelRequest identifies a reservation to cancel.
type CancelRequest struct {
	ReservationID int64 `json:"reservation_id" validate:"required,gt=0"`
}

// BlockTerrainRequest marks a terrain unavailable for new bookings.
type BlockTerrainRequest struct {
	TerrainID int64  `json:"terrain_id" validate:"required,gt=0"`
	Reason    string `json:"reason"`
}

// SubscribeRequest identifies a subscription plan.
type SubscribeRequest struct {
	SubscriptionID int64 `json:"subscription_id" validate:"required,gt=0"`
}

// AvailabilityResult is the payload of a CHECK_AVAILABILITY response.
type AvailabilityResult struct {
	Available bool `json:"available"`
}

// ReservationResult is the payload of a CREATE_RESERVATION response.
type ReservationResult struct {
	ReservationID int64   `json:"reservation_id"`
	Total         float64 `json:"total"`
	Discount      float64 `json:"discount"`
}

// Codec reads request frames and writes response frames on a connection.
type Codec struct {
	dec *json.Decoder
	enc *json.Encoder
}

// NewCodec wraps a connection (or any read/writer) in a frame codec.
func NewCodec(rw io.ReadWriter) *Codec {
	dec := json.NewDecoder(rw)
	dec.DisallowUnknownFields()
	return &Codec{dec: dec, enc: json.NewEncoder(rw)}
}

// ReadRequest decodes the next request frame.
func (c *Codec) ReadRequest() (*Request, error) {
	var req Request
	if err := c.dec.Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// WriteResponse encodes one response frame.
func (c *Codec) WriteResponse(resp Response) error {
	return c.enc.Encode(resp)
}
