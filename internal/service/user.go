// Package service contains the business logic behind the HTTP handlers.
package service

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/DukeRupert/stateless/internal/domain"
	"github.com/DukeRupert/stateless/internal/metrics"
	"github.com/DukeRupert/stateless/internal/repository"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/text/cases"
)

// =============================================================================
// Configuration Constants
// =============================================================================

const (
	// BcryptCost is the cost factor for bcrypt password hashing.
	// Cost 12 provides good security (~250ms on modern hardware) while being
	// fast enough for login flows.
	BcryptCost = 12

	// MinPasswordLength is the minimum password length accepted on import.
	MinPasswordLength = 8

	// MaxPasswordLength matches the bcrypt 72-byte input limit.
	MaxPasswordLength = 72
)

// dummyHash is compared against when the username is unknown so that a miss
// costs the same as a wrong password. bcrypt hash of "dummy".
const dummyHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// =============================================================================
// Interface Definition
// =============================================================================

// UserService defines the user operations needed by authentication.
type UserService interface {
	// Authenticate checks a username/password pair.
	// Returns domain.ErrCredentialRejected (code EUNAUTHORIZED) for unknown
	// users, wrong passwords and disabled accounts alike.
	Authenticate(ctx context.Context, username, password, clientIP string) (*domain.User, error)

	// GetByID retrieves an enabled user by id.
	// Returns domain.ErrUserNotFound (code ENOTFOUND) if the user does not
	// exist or is disabled.
	GetByID(ctx context.Context, id int64) (*domain.User, error)

	// ImportUsers validates, hashes and upserts the given users.
	// Returns the number of users written.
	ImportUsers(ctx context.Context, seeds []domain.UserSeed) (int, error)
}

// =============================================================================
// Implementation
// =============================================================================

// userService is the concrete implementation of UserService.
type userService struct {
	queries  repository.Querier
	logger   *slog.Logger
	hashCost int
}

// NewUserService creates a new UserService instance.
func NewUserService(queries repository.Querier, logger *slog.Logger) UserService {
	return &userService{
		queries:  queries,
		logger:   logger,
		hashCost: BcryptCost,
	}
}

// Authenticate verifies credentials and records the attempt.
//
// Security Considerations:
// - Constant-time password comparison via bcrypt
// - Unknown usernames still pay for one bcrypt comparison
// - One error for every failure cause prevents username enumeration
func (s *userService) Authenticate(ctx context.Context, username, password, clientIP string) (*domain.User, error) {
	const op = "UserService.Authenticate"

	username = NormalizeUsername(username)

	repoUser, err := s.queries.GetUserByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			_ = bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
			s.recordLogin(ctx, nil, username, clientIP, false)
			return nil, domain.CredentialRejected(op)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(repoUser.PasswordHash), []byte(password)); err != nil {
		s.recordLogin(ctx, &repoUser.ID, username, clientIP, false)
		return nil, domain.CredentialRejected(op)
	}

	if !repoUser.Enabled {
		s.recordLogin(ctx, &repoUser.ID, username, clientIP, false)
		return nil, domain.CredentialRejected(op)
	}

	s.recordLogin(ctx, &repoUser.ID, username, clientIP, true)

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""

	s.logger.Info("user authenticated", "user_id", user.ID, "username", user.Username)
	return user, nil
}

// GetByID loads the principal for a decoded token.
func (s *userService) GetByID(ctx context.Context, id int64) (*domain.User, error) {
	const op = "UserService.GetByID"

	repoUser, err := s.queries.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.UserNotFound(op, id)
		}
		return nil, domain.Internal(err, op, "Failed to retrieve user")
	}

	// A disabled account is indistinguishable from a deleted one.
	if !repoUser.Enabled {
		return nil, domain.UserNotFound(op, id)
	}

	user := repoUserToDomain(repoUser)
	user.PasswordHash = ""
	return user, nil
}

// ImportUsers writes seed users, typically from the users import command.
// Validation runs over every seed before anything is written.
func (s *userService) ImportUsers(ctx context.Context, seeds []domain.UserSeed) (int, error) {
	const op = "UserService.ImportUsers"

	for i, seed := range seeds {
		if NormalizeUsername(seed.Username) == "" {
			return 0, domain.Invalid(op, "user "+strconv.Itoa(i)+": username is required")
		}
		if err := validatePassword(seed.Password); err != nil {
			return 0, domain.Invalid(op, "user "+seed.Username+": "+err.Error())
		}
	}

	written := 0
	for _, seed := range seeds {
		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), s.hashCost)
		if err != nil {
			return written, domain.Internal(err, op, "Failed to hash password")
		}

		authorities := make([]string, 0, len(seed.Authorities))
		for _, a := range seed.Authorities {
			if a = strings.TrimSpace(a); a != "" {
				authorities = append(authorities, a)
			}
		}

		_, err = s.queries.UpsertUser(ctx, repository.UpsertUserParams{
			Username:     NormalizeUsername(seed.Username),
			PasswordHash: string(hash),
			Authorities:  authorities,
			Enabled:      seed.IsEnabled(),
		})
		if err != nil {
			return written, domain.Internal(err, op, "Failed to store user")
		}
		written++
	}

	s.logger.Info("users imported", "count", written)
	return written, nil
}

// recordLogin appends an audit event. Failures are logged, never returned:
// an unavailable audit table must not block logins.
func (s *userService) recordLogin(ctx context.Context, userID *int64, username, clientIP string, succeeded bool) {
	outcome := "failure"
	if succeeded {
		outcome = "success"
	}
	metrics.LoginsTotal.WithLabelValues(outcome).Inc()

	err := s.queries.CreateLoginEvent(ctx, repository.CreateLoginEventParams{
		ID:        uuid.New(),
		UserID:    domain.NullInt64(userID),
		Username:  username,
		ClientIP:  parseInet(clientIP),
		Succeeded: succeeded,
	})
	if err != nil {
		s.logger.Warn("failed to record login event", "error", err, "username", username)
	}
}

// =============================================================================
// Helpers
// =============================================================================

// NormalizeUsername trims and case-folds a username so lookups are case
// insensitive.
func NormalizeUsername(username string) string {
	return cases.Fold().String(strings.TrimSpace(username))
}

// parseInet converts a client address to an inet value; unparseable
// addresses are stored as NULL.
func parseInet(ip string) pqtype.Inet {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return pqtype.Inet{Valid: false}
	}

	bits := 128
	if v4 := parsed.To4(); v4 != nil {
		parsed = v4
		bits = 32
	}
	return pqtype.Inet{
		IPNet: net.IPNet{IP: parsed, Mask: net.CIDRMask(bits, bits)},
		Valid: true,
	}
}

// repoUserToDomain converts a repository row to the domain type.
func repoUserToDomain(u repository.User) *domain.User {
	authorities := make([]string, len(u.Authorities))
	copy(authorities, u.Authorities)

	return &domain.User{
		ID:           u.ID,
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		Authorities:  authorities,
		Enabled:      u.Enabled,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// validatePassword enforces length bounds on imported passwords.
func validatePassword(password string) error {
	if len(password) < MinPasswordLength {
		return errors.New("password must be at least " + strconv.Itoa(MinPasswordLength) + " characters")
	}
	if len(password) > MaxPasswordLength {
		return errors.New("password must be at most " + strconv.Itoa(MaxPasswordLength) + " characters")
	}
	return nil
}

// Compile-time interface check
var _ UserService = (*userService)(nil)
