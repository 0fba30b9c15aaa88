package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/sethvargo/go-retry"
	"github.com/sirupsen/logrus"

	"zen-accounts/internal/auth"
	"zen-accounts/internal/domain"
	"zen-accounts/internal/mail"
	"zen-accounts/internal/repository"
)

const (
	msgEmailEmpty      = "Email cannot be empty"
	msgPasswordEmpty   = "Password cannot be empty"
	msgNameEmpty       = "Name cannot be empty"
	msgUsernameEmpty   = "UserName cannot be empty"
	msgPasswordTooLong = "Password cannot exceed 72 bytes"
	msgEmailExists     = "A user with this email already exists"
	msgUserNotFound    = "User not found."
	msgInvalidPassword = "Invalid password."
	msgInvalidToken    = "Invalid token."
	msgNoSuchEmail     = "A user with this email does not exist"
	msgResetMismatch   = "A user with this email and verification token does not exist"
	msgSendFailed      = "Failed to send email"
	msgLoadFailed      = "Failed to load user data"
	msgSaveFailed      = "Failed to save user data"
	msgHashFailed      = "Failed to hash password"
)

// AuthService describes the account credential lifecycle.
type AuthService interface {
	Signup(ctx context.Context, in SignupInput) (string, error)
	Login(ctx context.Context, email, password string) (string, error)
	RequestPasswordReset(ctx context.Context, email string) error
	ResetPassword(ctx context.Context, email, verificationToken, newPassword string) error
	ChangePassword(ctx context.Context, bearerToken, newPassword string) error
}

// SignupInput carries the fields of a new account.
type SignupInput struct {
	Name     string
	Username string
	Email    string
	Password string
}

// Config tunes AuthService behaviour.
type Config struct {
	// ResetURL is the base of the link mailed for password resets.
	ResetURL string
	// MailTimeout bounds a single reset email dispatch.
	MailTimeout time.Duration
	// ConflictRetries is how many times a mutation is retried after another
	// writer saved the directory first.
	ConflictRetries uint64
	ConflictBackoff time.Duration
	Logger          *logrus.Logger
}

// Dependencies groups the collaborators AuthService is built from.
type Dependencies struct {
	Store        repository.DirectoryRepository
	Hasher       auth.PasswordHasher
	Tokens       auth.TokenIssuer
	Verification auth.VerificationTokenGenerator
	Mailer       mail.Sender
}

type authService struct {
	cfg  Config
	deps Dependencies
	log  *logrus.Entry

	// mu serializes every load-mutate-save section; Login takes the read side.
	mu sync.RWMutex
}

func NewAuthService(cfg Config, deps Dependencies) (AuthService, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("directory store is required")
	case deps.Hasher == nil:
		return nil, errors.New("password hasher is required")
	case deps.Tokens == nil:
		return nil, errors.New("token issuer is required")
	case deps.Verification == nil:
		return nil, errors.New("verification token generator is required")
	case deps.Mailer == nil:
		return nil, errors.New("mail sender is required")
	}
	if cfg.MailTimeout <= 0 {
		cfg.MailTimeout = 10 * time.Second
	}
	if cfg.ConflictRetries == 0 {
		cfg.ConflictRetries = 4
	}
	if cfg.ConflictBackoff <= 0 {
		cfg.ConflictBackoff = 20 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &authService{
		cfg:  cfg,
		deps: deps,
		log:  cfg.Logger.WithField("component", "auth_service"),
	}, nil
}

func (s *authService) Signup(ctx context.Context, in SignupInput) (string, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(in.Email)

	switch {
	case in.Email == "":
		return "", newError(ErrValidation, msgEmailEmpty)
	case strings.TrimSpace(in.Password) == "":
		return "", newError(ErrValidation, msgPasswordEmpty)
	case in.Name == "":
		return "", newError(ErrValidation, msgNameEmpty)
	case in.Username == "":
		return "", newError(ErrValidation, msgUsernameEmpty)
	case len(in.Password) > auth.MaxPasswordBytes:
		return "", newError(ErrValidation, msgPasswordTooLong)
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return "", err
	}

	log := s.log.WithFields(logrus.Fields{"op": "signup", "email": in.Email})
	err = s.update(ctx, log, func(dir *domain.UserDirectory) error {
		if dir.FindByEmail(in.Email) != nil {
			return newError(ErrConflict, msgEmailExists)
		}
		dir.Add(domain.UserRecord{
			Name:         in.Name,
			Username:     in.Username,
			Email:        in.Email,
			PasswordHash: hash,
		})
		return nil
	})
	if err != nil {
		return "", err
	}

	token, err := s.issue(in.Username)
	if err != nil {
		return "", err
	}
	log.Info("user created")
	return token, nil
}

func (s *authService) Login(ctx context.Context, email, password string) (string, error) {
	email = strings.TrimSpace(email)
	log := s.log.WithFields(logrus.Fields{"op": "login", "email": email})

	s.mu.RLock()
	dir, err := s.load(ctx)
	s.mu.RUnlock()
	if err != nil {
		log.WithError(err).Error("load directory")
		return "", err
	}

	user := dir.FindByEmail(email)
	if user == nil {
		return "", newError(ErrNotFound, msgUserNotFound)
	}
	if !s.deps.Hasher.Verify(password, user.PasswordHash) {
		log.Debug("password mismatch")
		return "", newError(ErrUnauthorized, msgInvalidPassword)
	}

	return s.issue(user.Username)
}

func (s *authService) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	log := s.log.WithFields(logrus.Fields{"op": "request_reset", "email": email})

	token, err := s.deps.Verification.Generate()
	if err != nil {
		log.WithError(err).Error("generate verification token")
		return wrapError(ErrInternal, "Failed to generate verification token", err)
	}
	resetURL := s.resetURL(email, token)

	// A revision-conflict retry reruns the mutation with the same token and
	// must not mail the user twice.
	sent := false
	// Only delivery follows the caller's cancellation. Once the mail is out
	// the token has to reach the store even if the client hung up.
	err = s.update(context.WithoutCancel(ctx), log, func(dir *domain.UserDirectory) error {
		user := dir.FindByEmail(email)
		if user == nil {
			return newError(ErrNotFound, msgNoSuchEmail)
		}
		user.VerificationToken = token
		if sent {
			return nil
		}

		sendCtx, cancel := context.WithTimeout(ctx, s.cfg.MailTimeout)
		defer cancel()
		if err := s.deps.Mailer.SendResetPassword(sendCtx, *user, resetURL); err != nil {
			log.WithError(err).Error("send reset email")
			return wrapError(ErrEmailDelivery, msgSendFailed, err)
		}
		sent = true
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("password reset email sent")
	return nil
}

func (s *authService) ResetPassword(ctx context.Context, email, verificationToken, newPassword string) error {
	email = strings.TrimSpace(email)
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}

	log := s.log.WithFields(logrus.Fields{"op": "reset_password", "email": email})
	err = s.update(ctx, log, func(dir *domain.UserDirectory) error {
		user := dir.FindByResetToken(email, verificationToken)
		if user == nil {
			return newError(ErrBadRequest, msgResetMismatch)
		}
		user.PasswordHash = hash
		user.VerificationToken = ""
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("password reset")
	return nil
}

func (s *authService) ChangePassword(ctx context.Context, bearerToken, newPassword string) error {
	claims, err := s.deps.Tokens.Validate(bearerToken)
	if err != nil {
		s.log.WithField("op", "change_password").WithError(err).Debug("reject token")
		return wrapError(ErrUnauthorized, msgInvalidToken, err)
	}
	if err := validateNewPassword(newPassword); err != nil {
		return err
	}
	hash, err := s.hash(newPassword)
	if err != nil {
		return err
	}

	log := s.log.WithFields(logrus.Fields{"op": "change_password", "username": claims.Subject})
	err = s.update(ctx, log, func(dir *domain.UserDirectory) error {
		// Usernames are not unique: the token subject resolves to the first
		// account holding that username.
		user := dir.FindByUsername(claims.Subject)
		if user == nil {
			return newError(ErrNotFound, msgUserNotFound)
		}
		user.PasswordHash = hash
		return nil
	})
	if err != nil {
		return err
	}

	log.Info("password changed")
	return nil
}

// update runs mutate against a freshly loaded directory and saves the result,
// holding the write lock for the whole section. If another writer saved first
// the section is rerun on the newer snapshot.
func (s *authService) update(ctx context.Context, log *logrus.Entry, mutate func(dir *domain.UserDirectory) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	backoff := retry.WithMaxRetries(s.cfg.ConflictRetries,
		retry.WithJitter(s.cfg.ConflictBackoff/2, retry.NewConstant(s.cfg.ConflictBackoff)))

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		dir, err := s.load(ctx)
		if err != nil {
			return err
		}
		if err := mutate(dir); err != nil {
			return err
		}
		if err := s.deps.Store.Save(ctx, dir); err != nil {
			if errors.Is(err, repository.ErrRevisionConflict) {
				log.Warn("directory changed by another writer, retrying")
				return retry.RetryableError(wrapError(ErrStore, msgSaveFailed, err))
			}
			return wrapError(ErrStore, msgSaveFailed, err)
		}
		return nil
	})
	if err != nil {
		var svcErr *Error
		if !errors.As(err, &svcErr) {
			err = wrapError(ErrStore, msgSaveFailed, err)
		}
		if errors.Is(err, ErrStore) {
			log.WithError(err).Error("persist directory")
		}
		return err
	}
	return nil
}

func (s *authService) load(ctx context.Context) (*domain.UserDirectory, error) {
	dir, err := s.deps.Store.Load(ctx)
	if err != nil {
		return nil, wrapError(ErrStore, msgLoadFailed, err)
	}
	return dir, nil
}

func (s *authService) hash(password string) (string, error) {
	hash, err := s.deps.Hasher.Hash(password)
	if err != nil {
		s.log.WithError(err).Error("hash password")
		return "", wrapError(ErrHashing, msgHashFailed, err)
	}
	return hash, nil
}

func (s *authService) issue(username string) (string, error) {
	token, err := s.deps.Tokens.Issue(username)
	if err != nil {
		s.log.WithError(err).Error("issue token")
		return "", wrapError(ErrInternal, "Failed to issue token", err)
	}
	return token, nil
}

func (s *authService) resetURL(email, token string) string {
	base := strings.TrimRight(s.cfg.ResetURL, "/")
	return fmt.Sprintf("%s/%s/%s", base, url.PathEscape(email), token)
}

func validateNewPassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return newError(ErrValidation, msgPasswordEmpty)
	}
	if len(password) > auth.MaxPasswordBytes {
		return newError(ErrValidation, msgPasswordTooLong)
	}
	return nil
}
