package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/relaysync/relaysync-api/internal/config"
	"github.com/relaysync/relaysync-api/internal/credential"
	"github.com/relaysync/relaysync-api/internal/objectclass"
	"github.com/relaysync/relaysync-api/internal/protocol"
	"github.com/relaysync/relaysync-api/internal/storage"
	"github.com/relaysync/relaysync-api/internal/synccount"
)

// Server composes the components the handler set wires together, one
// method per request type, in the familiar handler style: a thin function
// per route pulling dependencies off the receiver.
type Server struct {
	Config     *config.Config
	Gateway    *storage.Gateway
	Credential *credential.Store
	SyncEngine *synccount.Engine
	Registry   *objectclass.Registry
}

// Dispatch parses the envelope and routes to the handler for env.Type. It
// is the single entry point chi registers for POST /.
func (s *Server) Dispatch(w http.ResponseWriter, r *http.Request) {
	env, code := ParseEnvelope(r, s.Config)
	if code != protocol.Success {
		writeError(w, code)
		return
	}

	switch protocol.RequestType(env.Type) {
	case protocol.TypeTest:
		s.Test(w, r, env)
	case protocol.TypeAccountOpen:
		s.AccountOpen(w, r, env)
	case protocol.TypeAccountClose:
		s.AccountClose(w, r, env)
	case protocol.TypeAccountModify:
		s.AccountModify(w, r, env)
	case protocol.TypeBaseDataDown:
		s.BaseDataDown(w, r, env)
	case protocol.TypeSyncDown:
		s.SyncDown(w, r, env)
	case protocol.TypeSyncUp:
		s.SyncUp(w, r, env)
	default:
		writeError(w, protocol.MalformedRequest)
	}
}

// Test authenticates and returns SUCCESS or AUTH_FAIL — nothing else.
// Repeated calls with the same credentials are idempotent because
// Authenticate has no side effects.
func (s *Server) Test(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()
	_, _, err := s.Credential.Authenticate(ctx, env.Email, env.Password)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, credential.ErrAuthFail):
		writeError(w, protocol.AuthFail)
	default:
		s.internalError(w, r, "test", err)
	}
}

// AccountOpen validates email/password shape, hashes the password, and
// inserts User + initial Client atomically.
func (s *Server) AccountOpen(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()

	var body protocol.AccountOpenBody
	if err := protocol.DecodeStrict(env.Body, &body); err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}

	if !validEmailSyntax(env.Email) {
		writeError(w, protocol.InvalidEmail)
		return
	}
	if len(env.Password) < s.Config.MinPasswordLength {
		writeError(w, protocol.InvalidPassword)
		return
	}

	clientUUID, err := uuid.Parse(body.ClientUUID)
	if err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}

	_, _, err = s.Credential.CreateUser(ctx, env.Email, credential.CategoryStandard, env.Password, clientUUID)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, credential.ErrEmailNotUnique):
		writeError(w, protocol.EmailNotUnique)
	case errors.Is(err, credential.ErrClientUUIDNotUnique):
		writeError(w, protocol.ClientUUIDNotUnique)
	default:
		s.internalError(w, r, "accountOpen", err)
	}
}

// AccountClose authenticates and deletes the User; cascading client
// deletion is a schema concern.
func (s *Server) AccountClose(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()
	err := s.Credential.DeleteUser(ctx, env.Email, env.Password)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, credential.ErrAuthFail):
		writeError(w, protocol.AuthFail)
	default:
		s.internalError(w, r, "accountClose", err)
	}
}

// AccountModify authenticates under current credentials, validates the new
// ones, and applies a conditional update keyed on the current email.
func (s *Server) AccountModify(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()

	var body protocol.AccountModifyBody
	if err := protocol.DecodeStrict(env.Body, &body); err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}

	if !validEmailSyntax(body.Email) {
		writeError(w, protocol.InvalidEmail)
		return
	}
	if len(body.Password) < s.Config.MinPasswordLength {
		writeError(w, protocol.InvalidPassword)
		return
	}

	newEmail := body.Email
	newPassword := body.Password
	err := s.Credential.ModifyUser(ctx, env.Email, env.Password, &newEmail, &newPassword)
	switch {
	case err == nil:
		writeSuccess(w)
	case errors.Is(err, credential.ErrAuthFail):
		writeError(w, protocol.AuthFail)
	case errors.Is(err, credential.ErrEmailNotUnique):
		writeError(w, protocol.EmailNotUnique)
	default:
		s.internalError(w, r, "accountModify", err)
	}
}

// BaseDataDown requires no authentication and returns the seed dataset for
// an object class — empty in this core, since per-application seed data is
// a domain-layer concern.
func (s *Server) BaseDataDown(w http.ResponseWriter, r *http.Request, env *Envelope) {
	var body protocol.SyncDownBody
	if err := protocol.DecodeStrict(env.Body, &body); err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}
	if _, ok := s.Registry.Lookup(body.ObjectClass); !ok {
		writeError(w, protocol.MalformedRequest)
		return
	}
	writeResponse(w, protocol.Success, []map[string]any{}, nil)
}

// SyncDown authenticates, resolves the client, and returns rows with
// lastSync in (requestLastSync, committedSyncCount(C)] alongside the
// current watermark.
func (s *Server) SyncDown(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()

	var body protocol.SyncDownBody
	if err := protocol.DecodeStrict(env.Body, &body); err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}

	descriptor, ok := s.Registry.Lookup(body.ObjectClass)
	if !ok {
		writeError(w, protocol.MalformedRequest)
		return
	}
	ctx = WithObjectClass(ctx, body.ObjectClass)
	r = r.WithContext(ctx)

	user, _, err := s.Credential.Authenticate(ctx, env.Email, env.Password)
	if err != nil {
		if errors.Is(err, credential.ErrAuthFail) {
			writeError(w, protocol.AuthFail)
		} else {
			s.internalError(w, r, "syncDown", err)
		}
		return
	}
	ctx = WithUser(ctx, user.ID)
	r = r.WithContext(ctx)

	clientUUID, err := uuid.Parse(body.ClientUUID)
	if err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}
	if _, err := s.Credential.ResolveOrCreateClient(ctx, user.ID, clientUUID); err != nil {
		s.internalError(w, r, "syncDown", err)
		return
	}

	watermark, err := s.SyncEngine.CommittedWatermark(ctx, body.ObjectClass)
	if err != nil {
		s.internalError(w, r, "syncDown", err)
		return
	}

	// A resume point ahead of the watermark cannot have come from this
	// server's responses (returned watermarks never regress), so the rows
	// between them are unreconstructable and the client must restart from
	// zero.
	if body.LastSync > watermark {
		writeError(w, protocol.FullSyncRequired)
		return
	}

	objects, err := s.selectRows(ctx, descriptor, user.ID, body.LastSync, watermark)
	if err != nil {
		s.internalError(w, r, "syncDown", err)
		return
	}

	writeResponse(w, protocol.Success, objects, &watermark)
}

func (s *Server) selectRows(ctx context.Context, descriptor objectclass.Descriptor, ownerUserID, lastSync, watermark int64) ([]map[string]any, error) {
	rows, err := s.Gateway.Pool().Query(ctx, descriptor.SelectStmt(), ownerUserID, lastSync, watermark)
	if err != nil {
		return nil, storage.Classify(err)
	}
	defer rows.Close()

	objects := make([]map[string]any, 0)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, storage.Classify(err)
		}
		row := valuesToRow(descriptor, values)
		objects = append(objects, descriptor.ToWire(row))
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Classify(err)
	}
	return objects, nil
}

// valuesToRow maps the positional column values SelectStmt() returns (id,
// then the common columns in AllColumns() order, then domain fields) onto
// an objectclass.Row.
func valuesToRow(descriptor objectclass.Descriptor, values []any) objectclass.Row {
	row := objectclass.Row{Fields: make(map[string]any, len(descriptor.Fields))}
	row.ID = toInt64(values[0])
	row.OriginClientID = toInt64(values[1])
	row.OriginClientObjectID = toInt64(values[2])
	row.LastUpdatedByClientID = toInt64(values[3])
	row.OwnerUserID = toInt64(values[4])
	row.LastSync = toInt64(values[5])
	if deleted, ok := values[6].(bool); ok {
		row.Deleted = deleted
	}
	for i, name := range descriptor.Fields {
		row.Fields[name] = values[7+i]
	}
	return row
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int32:
		return int64(n)
	case int:
		return int64(n)
	default:
		return 0
	}
}

// SyncUp authenticates, resolves the client, reserves a session, applies
// every uploaded row with lastSync = sessionSyncCount, marks the session
// committed, and returns the new committedSyncCount(C).
func (s *Server) SyncUp(w http.ResponseWriter, r *http.Request, env *Envelope) {
	ctx := r.Context()

	var body protocol.SyncUpBody
	if err := protocol.DecodeStrict(env.Body, &body); err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}

	descriptor, ok := s.Registry.Lookup(body.ObjectClass)
	if !ok {
		writeError(w, protocol.MalformedRequest)
		return
	}
	ctx = WithObjectClass(ctx, body.ObjectClass)
	r = r.WithContext(ctx)

	user, _, err := s.Credential.Authenticate(ctx, env.Email, env.Password)
	if err != nil {
		if errors.Is(err, credential.ErrAuthFail) {
			writeError(w, protocol.AuthFail)
		} else {
			s.internalError(w, r, "syncUp", err)
		}
		return
	}
	ctx = WithUser(ctx, user.ID)
	r = r.WithContext(ctx)

	clientUUID, err := uuid.Parse(body.ClientUUID)
	if err != nil {
		writeError(w, protocol.InvalidJSONObject)
		return
	}
	client, err := s.Credential.ResolveOrCreateClient(ctx, user.ID, clientUUID)
	if err != nil {
		if errors.Is(err, credential.ErrClientUUIDNotUnique) {
			writeError(w, protocol.ClientUUIDNotUnique)
			return
		}
		s.internalError(w, r, "syncUp", err)
		return
	}

	sessionSyncCount, err := s.SyncEngine.Reserve(ctx, body.ObjectClass)
	if err != nil {
		s.internalError(w, r, "syncUp", err)
		return
	}

	commitErr := s.Gateway.WithSession(ctx, func(sess *storage.Session) error {
		for _, item := range body.Objects {
			row, err := descriptor.ExtractUpload(item, client.ID, user.ID)
			if err != nil {
				return err
			}
			row.LastSync = sessionSyncCount

			args := descriptor.UpsertArgs(row)
			if _, err := sess.Exec(ctx, descriptor.UpsertStmt(), args...); err != nil {
				return err
			}
			// A RowsAffected of 0 means the conflict's WHERE clause
			// rejected a stale write (last-writer-wins); not a failure.
		}
		return s.SyncEngine.MarkCommitted(ctx, sess, body.ObjectClass, sessionSyncCount)
	})

	if commitErr != nil {
		log.Ctx(ctx).Warn().Err(commitErr).Str("object_class", body.ObjectClass).
			Int64("sync_count", sessionSyncCount).
			Msg("syncUp data transaction failed, retrying commit marker out-of-band")
		if retryErr := s.SyncEngine.MarkCommittedWithRetry(ctx, body.ObjectClass, sessionSyncCount); retryErr != nil {
			log.Ctx(ctx).Error().Err(retryErr).Msg("out-of-band commit marker retry failed")
		}
		s.internalError(w, r, "syncUp", commitErr)
		return
	}

	watermark, err := s.SyncEngine.CommittedWatermark(ctx, body.ObjectClass)
	if err != nil {
		s.internalError(w, r, "syncUp", err)
		return
	}

	writeResponse(w, protocol.Success, nil, &watermark)
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, op string, err error) {
	log.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("internal server error")
	writeError(w, protocol.InternalServerError)
}

func validEmailSyntax(email string) bool {
	at := -1
	for i, c := range email {
		if c == '@' {
			at = i
			break
		}
	}
	return at > 0 && at < len(email)-1
}
