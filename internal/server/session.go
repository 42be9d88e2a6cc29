package server

import (
	"context"
	"errors"
	"io"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"courtbook/internal/auth"
	"courtbook/internal/booking"
	"courtbook/internal/cache"
	"courtbook/internal/database"
	"courtbook/internal/metrics"
	"courtbook/internal/models"
	"courtbook/internal/protocol"
)

// Booker is the reservation surface a session drives.
type Booker interface {
	CheckAvailability(ctx context.Context, terrainID int64, date, start, end time.Time) (bool, error)
	CreateReservation(ctx context.Context, r *models.Reservation) (*models.Reservation, error)
	CancelReservation(ctx context.Context, id int64, requester *models.User) error
}

// Authenticator handles account commands.
type Authenticator interface {
	Authenticate(ctx context.Context, username, password string) (*models.User, error)
	Register(ctx context.Context, u *models.User, password string) (int64, error)
}

// CatalogStore serves the read-mostly listing commands.
type CatalogStore interface {
	AllSports(ctx context.Context) ([]models.Sport, error)
	AllCities(ctx context.Context) ([]models.City, error)
	CentresByCity(ctx context.Context, cityID int64) ([]models.Centre, error)
	TerrainsBySportAndCentre(ctx context.Context, sportID, centreID int64) ([]models.Terrain, error)
	ReservationsByUser(ctx context.Context, userID int64) ([]models.Reservation, error)
	AllSubscriptions(ctx context.Context) ([]models.Subscription, error)
	Subscribe(ctx context.Context, userID, subscriptionID int64) error
	Stats(ctx context.Context) (*models.Stats, error)

	// Admin surface.
	BlockTerrain(ctx context.Context, id int64, reason string) error
	AllTerrains(ctx context.Context) ([]models.Terrain, error)
	AllReservations(ctx context.Context) ([]models.Reservation, error)
}

// session serves one client connection: it reads request frames, routes
// them, and writes exactly one response per request. Authentication state
// lives here and nowhere else.
type session struct {
	id      string
	conn    net.Conn
	codec   *protocol.Codec
	booker  Booker
	auth    Authenticator
	store   CatalogStore
	catalog *cache.Catalog
	limiter *rate.Limiter
	user    *models.User
	logger  zerolog.Logger
}

func newSession(conn net.Conn, booker Booker, authn Authenticator, store CatalogStore, catalog *cache.Catalog, requestsPerSec int, logger *zerolog.Logger) *session {
	id := uuid.NewString()
	return &session{
		id:      id,
		conn:    conn,
		codec:   protocol.NewCodec(conn),
		booker:  booker,
		auth:    authn,
		store:   store,
		catalog: catalog,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSec), requestsPerSec),
		logger:  logger.With().Str("session_id", id).Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

func (s *session) run(ctx context.Context) {
	metrics.SessionOpened()
	defer metrics.SessionClosed()
	defer s.conn.Close()

	// Unblock the read loop when the server shuts down.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			s.conn.Close()
		case <-stop:
		}
	}()

	s.logger.Debug().Msg("session opened")
	for {
		req, err := s.codec.ReadRequest()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) && ctx.Err() == nil {
				s.logger.Debug().Err(err).Msg("read failed; closing session")
			}
			return
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		resp := s.handle(ctx, req)
		metrics.IncCommand(req.Command, resp.Status)
		if err := s.codec.WriteResponse(resp); err != nil {
			s.logger.Debug().Err(err).Msg("write failed; closing session")
			return
		}
		if req.Command == protocol.CmdDisconnect {
			s.logger.Debug().Msg("client disconnected")
			return
		}
	}
}

// handle routes one request. Command failures become ERROR responses on a
// live connection; only transport errors close the session.
func (s *session) handle(ctx context.Context, req *protocol.Request) protocol.Response {
	switch req.Command {
	case protocol.CmdLogin:
		return s.handleLogin(ctx, req)
	case protocol.CmdRegister:
		return s.handleRegister(ctx, req)
	case protocol.CmdCheckAvailability:
		// Availability is advisory and public; no login needed to browse.
		return s.handleCheckAvailability(ctx, req)
	case protocol.CmdDisconnect:
		return protocol.Success(nil)
	}

	if s.user == nil {
		return protocol.Error("authentication required")
	}

	switch req.Command {
	case protocol.CmdGetSports:
		return s.handleGetSports(ctx)
	case protocol.CmdGetCities:
		return s.handleGetCities(ctx)
	case protocol.CmdGetCentres:
		return s.handleGetCentres(ctx, req)
	case protocol.CmdGetTerrains:
		return s.handleGetTerrains(ctx, req)
	case protocol.CmdCreateReservation:
		return s.handleCreateReservation(ctx, req)
	case protocol.CmdGetMyReservations:
		return s.listOrError(s.store.ReservationsByUser(ctx, s.user.ID))
	case protocol.CmdGetSubscriptions:
		return s.listOrError(s.store.AllSubscriptions(ctx))
	case protocol.CmdSubscribe:
		return s.handleSubscribe(ctx, req)
	case protocol.CmdCancelReservation:
		return s.handleCancel(ctx, req)
	case protocol.CmdGetStats:
		return s.handleGetStats(ctx)
	case protocol.CmdBlockTerrain:
		return s.handleBlockTerrain(ctx, req)
	case protocol.CmdGetAllTerrains:
		if !s.user.IsAdmin() {
			return protocol.Error("admin access required")
		}
		return s.listOrError(s.store.AllTerrains(ctx))
	case protocol.CmdGetAllReservations:
		if !s.user.IsAdmin() {
			return protocol.Error("admin access required")
		}
		return s.listOrError(s.store.AllReservations(ctx))
	default:
		return protocol.Error("unknown command: " + req.Command)
	}
}

func (s *session) handleLogin(ctx context.Context, req *protocol.Request) protocol.Response {
	var login protocol.LoginRequest
	if err := req.DecodePayload(&login); err != nil {
		return protocol.Error(err.Error())
	}

	user, err := s.auth.Authenticate(ctx, login.Username, login.Password)
	if err != nil {
		return s.errorResponse(err)
	}
	s.user = user
	s.logger = s.logger.With().Int64("user_id", user.ID).Logger()
	s.logger.Info().Str("username", user.Username).Msg("login")
	return protocol.Success(user)
}

func (s *session) handleRegister(ctx context.Context, req *protocol.Request) protocol.Response {
	var reg protocol.RegisterRequest
	if err := req.DecodePayload(&reg); err != nil {
		return protocol.Error(err.Error())
	}

	user := &models.User{
		Username:  reg.Username,
		Email:     reg.Email,
		FirstName: reg.FirstName,
		LastName:  reg.LastName,
		Phone:     reg.Phone,
	}
	id, err := s.auth.Register(ctx, user, reg.Password)
	if err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(map[string]int64{"user_id": id})
}

func (s *session) handleGetSports(ctx context.Context) protocol.Response {
	var sports []models.Sport
	if s.catalog.Get(ctx, cache.KeySports, &sports) {
		return protocol.Success(sports)
	}
	sports, err := s.store.AllSports(ctx)
	if err != nil {
		return s.errorResponse(err)
	}
	s.catalog.Set(ctx, cache.KeySports, sports)
	return protocol.Success(sports)
}

func (s *session) handleGetCities(ctx context.Context) protocol.Response {
	var cities []models.City
	if s.catalog.Get(ctx, cache.KeyCities, &cities) {
		return protocol.Success(cities)
	}
	cities, err := s.store.AllCities(ctx)
	if err != nil {
		return s.errorResponse(err)
	}
	s.catalog.Set(ctx, cache.KeyCities, cities)
	return protocol.Success(cities)
}

func (s *session) handleGetCentres(ctx context.Context, req *protocol.Request) protocol.Response {
	var filter protocol.CentresRequest
	if err := req.DecodePayload(&filter); err != nil {
		return protocol.Error(err.Error())
	}

	key := cache.KeyCentres(filter.CityID)
	var centres []models.Centre
	if s.catalog.Get(ctx, key, &centres) {
		return protocol.Success(centres)
	}
	centres, err := s.store.CentresByCity(ctx, filter.CityID)
	if err != nil {
		return s.errorResponse(err)
	}
	s.catalog.Set(ctx, key, centres)
	return protocol.Success(centres)
}

func (s *session) handleGetTerrains(ctx context.Context, req *protocol.Request) protocol.Response {
	var filter protocol.TerrainsRequest
	if err := req.DecodePayload(&filter); err != nil {
		return protocol.Error(err.Error())
	}

	key := cache.KeyTerrains(filter.SportID, filter.CentreID)
	var terrains []models.Terrain
	if s.catalog.Get(ctx, key, &terrains) {
		return protocol.Success(terrains)
	}
	terrains, err := s.store.TerrainsBySportAndCentre(ctx, filter.SportID, filter.CentreID)
	if err != nil {
		return s.errorResponse(err)
	}
	s.catalog.Set(ctx, key, terrains)
	return protocol.Success(terrains)
}

func (s *session) handleCheckAvailability(ctx context.Context, req *protocol.Request) protocol.Response {
	var slot protocol.SlotRequest
	if err := req.DecodePayload(&slot); err != nil {
		return protocol.Error(err.Error())
	}
	date, start, end, err := slot.Interval()
	if err != nil {
		return protocol.Error(err.Error())
	}

	available, err := s.booker.CheckAvailability(ctx, slot.TerrainID, date, start, end)
	if err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(protocol.AvailabilityResult{Available: available})
}

func (s *session) handleCreateReservation(ctx context.Context, req *protocol.Request) protocol.Response {
	var slot protocol.SlotRequest
	if err := req.DecodePayload(&slot); err != nil {
		return protocol.Error(err.Error())
	}
	date, start, end, err := slot.Interval()
	if err != nil {
		return protocol.Error(err.Error())
	}

	r := &models.Reservation{
		UserID:    s.user.ID,
		TerrainID: slot.TerrainID,
		Date:      date,
		Start:     start,
		End:       end,
	}
	created, err := s.booker.CreateReservation(ctx, r)
	if err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(protocol.ReservationResult{
		ReservationID: created.ID,
		Total:         created.Total,
		Discount:      created.Discount,
	})
}

func (s *session) handleSubscribe(ctx context.Context, req *protocol.Request) protocol.Response {
	var sub protocol.SubscribeRequest
	if err := req.DecodePayload(&sub); err != nil {
		return protocol.Error(err.Error())
	}
	if err := s.store.Subscribe(ctx, s.user.ID, sub.SubscriptionID); err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(nil)
}

func (s *session) handleCancel(ctx context.Context, req *protocol.Request) protocol.Response {
	var cancel protocol.CancelRequest
	if err := req.DecodePayload(&cancel); err != nil {
		return protocol.Error(err.Error())
	}
	if err := s.booker.CancelReservation(ctx, cancel.ReservationID, s.user); err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(nil)
}

func (s *session) handleBlockTerrain(ctx context.Context, req *protocol.Request) protocol.Response {
	if !s.user.IsAdmin() {
		return protocol.Error("admin access required")
	}
	var block protocol.BlockTerrainRequest
	if err := req.DecodePayload(&block); err != nil {
		return protocol.Error(err.Error())
	}
	if err := s.store.BlockTerrain(ctx, block.TerrainID, block.Reason); err != nil {
		return s.errorResponse(err)
	}
	// Cached terrain listings age out via TTL; blocked terrains are also
	// rejected at booking time, so a stale listing cannot cause a booking.
	return protocol.Success(nil)
}

func (s *session) handleGetStats(ctx context.Context) protocol.Response {
	if !s.user.IsAdmin() {
		return protocol.Error("admin access required")
	}
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(stats)
}

func (s *session) listOrError(v any, err error) protocol.Response {
	if err != nil {
		return s.errorResponse(err)
	}
	return protocol.Success(v)
}

// errorResponse maps business errors to client-facing messages. Anything
// unrecognized is an internal failure and is not echoed to the client.
func (s *session) errorResponse(err error) protocol.Response {
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, booking.ErrInvalidInterval),
		errors.Is(err, booking.ErrTerrainInactive),
		errors.Is(err, booking.ErrNotAvailable),
		errors.Is(err, booking.ErrNotAllowed),
		errors.Is(err, booking.ErrLockTimeout):
		return protocol.Error(err.Error())
	case errors.Is(err, database.ErrNotAvailable):
		// The store can still lose a race at commit time, e.g. when a slot
		// is taken outside the coordinator. Same answer as a failed re-check.
		return protocol.Error(booking.ErrNotAvailable.Error())
	case errors.Is(err, booking.ErrNotFound), errors.Is(err, database.ErrNotFound):
		return protocol.Error("not found")
	case errors.Is(err, database.ErrDuplicateUser):
		return protocol.Error("username or email already taken")
	default:
		s.logger.Error().Err(err).Msg("command failed")
		return protocol.Error("internal error")
	}
}
