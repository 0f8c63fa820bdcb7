package credential

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/relaysync/relaysync-api/internal/storage"
)

// ErrEmailNotUnique is returned when createUser/modifyUser would violate
// the global uniqueness of User.email.
var ErrEmailNotUnique = errors.New("credential: email not unique")

// ErrClientUUIDNotUnique is returned when createUser would violate the
// global uniqueness of Client.uuid across all users.
var ErrClientUUIDNotUnique = errors.New("credential: client uuid not unique")

// ErrAuthFail is returned for any authentication failure. It must be
// indistinguishable whether the cause was an unknown email or a wrong
// password, so callers never leak which one failed.
var ErrAuthFail = errors.New("credential: authentication failed")

// User is a credential-store account record.
type User struct {
	ID       int64
	Email    string
	Verifier string
}

// Client is a device replica identity scoped to one User.
type Client struct {
	ID     int64
	UserID int64
	UUID   uuid.UUID
}

// Store implements User/Client CRUD atop a storage.Gateway.
type Store struct {
	gw *storage.Gateway
}

// NewStore wraps a Gateway.
func NewStore(gw *storage.Gateway) *Store {
	return &Store{gw: gw}
}

// CreateUser inserts a User and its initial Client atomically, keyed by the
// relational engine's row-id assignment. It distinguishes EmailNotUnique
// from ClientUUIDNotUnique by inspecting the storage layer's
// DuplicateKey{column} classification.
func (s *Store) CreateUser(ctx context.Context, email string, category Category, plaintext string, clientUUID uuid.UUID) (*User, *Client, error) {
	verifier, err := Hash(plaintext, category)
	if err != nil {
		return nil, nil, err
	}

	var user User
	var client Client

	err = s.gw.WithSession(ctx, func(sess *storage.Session) error {
		row := sess.QueryRow(ctx,
			`INSERT INTO app_user (email, password) VALUES ($1, $2) RETURNING id`,
			email, verifier)
		if err := row.Scan(&user.ID); err != nil {
			return err
		}
		user.Email = email
		user.Verifier = verifier

		row = sess.QueryRow(ctx,
			`INSERT INTO client (user_id, uuid) VALUES ($1, $2) RETURNING id`,
			user.ID, clientUUID)
		if err := row.Scan(&client.ID); err != nil {
			return err
		}
		client.UserID = user.ID
		client.UUID = clientUUID
		return nil
	})
	if err != nil {
		var se *storage.Error
		if errors.As(storage.Classify(err), &se) && se.Kind == storage.DuplicateKey {
			switch se.Column {
			case "email":
				return nil, nil, ErrEmailNotUnique
			case "uuid":
				return nil, nil, ErrClientUUIDNotUnique
			}
		}
		return nil, nil, err
	}

	return &user, &client, nil
}

// Authenticate loads a user with all its clients in one join, verifies
// plaintext against the stored verifier, and returns ErrAuthFail uniformly
// whether the email was unknown or the password was wrong.
func (s *Store) Authenticate(ctx context.Context, email, plaintext string) (*User, []Client, error) {
	pool := s.gw.Pool()
	rows, err := pool.Query(ctx, `
		SELECT u.id, u.email, u.password, c.id, c.uuid
		FROM app_user u
		LEFT JOIN client c ON c.user_id = u.id
		WHERE u.email = $1`, email)
	if err != nil {
		return nil, nil, storage.Classify(err)
	}
	defer rows.Close()

	var user User
	var clients []Client
	found := false
	for rows.Next() {
		found = true
		var clientID *int64
		var clientUUID *uuid.UUID
		if err := rows.Scan(&user.ID, &user.Email, &user.Verifier, &clientID, &clientUUID); err != nil {
			return nil, nil, storage.Classify(err)
		}
		if clientID != nil {
			clients = append(clients, Client{ID: *clientID, UserID: user.ID, UUID: *clientUUID})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, storage.Classify(err)
	}

	if !found || !Verify(plaintext, user.Verifier) {
		return nil, nil, ErrAuthFail
	}

	return &user, clients, nil
}

// ResolveOrCreateClient looks up a Client by UUID under userID, inserting a
// new Client row for this user if one is not already present.
func (s *Store) ResolveOrCreateClient(ctx context.Context, userID int64, clientUUID uuid.UUID) (*Client, error) {
	pool := s.gw.Pool()
	var client Client
	row := pool.QueryRow(ctx, `SELECT id, user_id, uuid FROM client WHERE uuid = $1`, clientUUID)
	err := row.Scan(&client.ID, &client.UserID, &client.UUID)
	if err == nil {
		if client.UserID != userID {
			return nil, ErrClientUUIDNotUnique
		}
		return &client, nil
	}
	if !storage.Is(storage.Classify(err), storage.NotFound) {
		return nil, storage.Classify(err)
	}

	row = pool.QueryRow(ctx, `INSERT INTO client (user_id, uuid) VALUES ($1, $2) RETURNING id`, userID, clientUUID)
	if err := row.Scan(&client.ID); err != nil {
		var se *storage.Error
		if errors.As(storage.Classify(err), &se) && se.Kind == storage.DuplicateKey {
			return nil, ErrClientUUIDNotUnique
		}
		return nil, storage.Classify(err)
	}
	client.UserID = userID
	client.UUID = clientUUID
	return &client, nil
}

// ModifyUser authenticates currentEmail/currentPlaintext, then conditionally
// updates email and/or password verifier. Either newEmail or newPlaintext
// may be nil to leave that field unchanged.
func (s *Store) ModifyUser(ctx context.Context, currentEmail, currentPlaintext string, newEmail *string, newPlaintext *string) error {
	user, _, err := s.Authenticate(ctx, currentEmail, currentPlaintext)
	if err != nil {
		return err
	}

	email := user.Email
	if newEmail != nil {
		email = *newEmail
	}
	verifier := user.Verifier
	if newPlaintext != nil {
		verifier, err = Hash(*newPlaintext, CategoryStandard)
		if err != nil {
			return err
		}
	}

	return s.gw.WithSession(ctx, func(sess *storage.Session) error {
		_, err := sess.Exec(ctx, `UPDATE app_user SET email = $1, password = $2 WHERE id = $3`, email, verifier, user.ID)
		if err != nil {
			var se *storage.Error
			if errors.As(err, &se) && se.Kind == storage.DuplicateKey && se.Column == "email" {
				return ErrEmailNotUnique
			}
			return err
		}
		return nil
	})
}

// DeleteUser removes a User by email. Cascading client deletion is a
// schema concern (the client.user_id foreign key is ON DELETE CASCADE).
func (s *Store) DeleteUser(ctx context.Context, email, plaintext string) error {
	user, _, err := s.Authenticate(ctx, email, plaintext)
	if err != nil {
		return err
	}
	return s.gw.WithSession(ctx, func(sess *storage.Session) error {
		_, err := sess.Exec(ctx, `DELETE FROM app_user WHERE id = $1`, user.ID)
		return err
	})
}
