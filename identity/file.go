package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/premproperties/portalauth"
	"github.com/premproperties/portalauth/permission"
	"github.com/premproperties/portalauth/session"
	"go.uber.org/zap"
)

// MasterAdmin is the environment-configured super admin. Its password is
// never written back anywhere.
type MasterAdmin struct {
	Email    string
	Password string
}

type adminRecord struct {
	ID          string   `json:"id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	Password    string   `json:"password"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
	Disabled    bool     `json:"disabled,omitempty"`
}

const masterAdminID = "master-admin"

// FileStore serves admin identities from a JSON array file. Rewrites go
// through a temp file and rename, so readers never see a partial file.
type FileStore struct {
	path   string
	master MasterAdmin
	logger *zap.Logger

	mu sync.RWMutex
}

var (
	_ portalauth.IdentityProvider = (*FileStore)(nil)
	_ portalauth.IdentityLister   = (*FileStore)(nil)
)

func NewFileStore(path string, master MasterAdmin, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	master.Email = strings.ToLower(strings.TrimSpace(master.Email))
	return &FileStore{path: path, master: master, logger: logger.Named("admins")}
}

func (s *FileStore) FindIdentity(ctx context.Context, kind session.Kind, email string) (portalauth.Identity, error) {
	if kind != session.KindAdmin {
		return portalauth.Identity{}, portalauth.ErrIdentityNotFound
	}
	if err := ctx.Err(); err != nil {
		return portalauth.Identity{}, err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.RLock()
	raw, err := s.load()
	s.mu.RUnlock()
	if err != nil {
		return portalauth.Identity{}, err
	}

	for _, entry := range raw {
		rec, err := decodeAdmin(entry)
		if err != nil {
			s.logger.Warn("skipping malformed admin record", zap.Error(err))
			continue
		}
		if strings.EqualFold(rec.Email, email) {
			return s.toIdentity(rec), nil
		}
	}
	if s.isMaster(email) {
		return s.masterIdentity(), nil
	}
	return portalauth.Identity{}, portalauth.ErrIdentityNotFound
}

// UpdateCredential replaces the password of the file entry for email. The
// master admin is refused with ErrImmutableIdentity unless the file also
// holds an entry for the same address.
func (s *FileStore) UpdateCredential(ctx context.Context, kind session.Kind, email, credential string) error {
	if kind != session.KindAdmin {
		return portalauth.ErrIdentityNotFound
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	email = strings.ToLower(strings.TrimSpace(email))

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, err := s.load()
	if err != nil {
		return err
	}
	idx := -1
	for i, entry := range raw {
		rec, err := decodeAdmin(entry)
		if err == nil && strings.EqualFold(rec.Email, email) {
			idx = i
			break
		}
	}
	if idx < 0 {
		if s.isMaster(email) {
			return portalauth.ErrImmutableIdentity
		}
		return portalauth.ErrIdentityNotFound
	}

	encoded, err := json.Marshal(credential)
	if err != nil {
		return err
	}
	raw[idx]["password"] = encoded
	return s.write(raw)
}

func (s *FileStore) ListIdentities(ctx context.Context, kind session.Kind) ([]portalauth.Identity, error) {
	if kind != session.KindAdmin {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	raw, err := s.load()
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	out := make([]portalauth.Identity, 0, len(raw)+1)
	masterInFile := false
	for _, entry := range raw {
		rec, err := decodeAdmin(entry)
		if err != nil {
			continue
		}
		if s.isMaster(strings.ToLower(rec.Email)) {
			masterInFile = true
		}
		out = append(out, s.toIdentity(rec))
	}
	if s.master.Email != "" && !masterInFile {
		out = append(out, s.masterIdentity())
	}
	return out, nil
}

// load reads the file as raw objects so a rewrite keeps fields this package
// does not know about. A missing file is an empty list.
func (s *FileStore) load() ([]map[string]json.RawMessage, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read admins: %v", portalauth.ErrStorage, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return nil, nil
	}

	var raw []map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse admins: %v", portalauth.ErrStorage, err)
	}
	return raw, nil
}

func (s *FileStore) write(raw []map[string]json.RawMessage) error {
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, ".admins-*.json")
	if err != nil {
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	if err := os.Chmod(tmpName, 0o600); err != nil {
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("%w: write admins: %v", portalauth.ErrStorage, err)
	}
	return nil
}

func decodeAdmin(entry map[string]json.RawMessage) (adminRecord, error) {
	b, err := json.Marshal(entry)
	if err != nil {
		return adminRecord{}, err
	}
	var rec adminRecord
	if err := json.Unmarshal(b, &rec); err != nil {
		return adminRecord{}, err
	}
	if rec.Email == "" {
		return adminRecord{}, errors.New("admin record without email")
	}
	return rec, nil
}

func (s *FileStore) toIdentity(rec adminRecord) portalauth.Identity {
	role, ok := permission.ParseRole(rec.Role)
	if !ok || !role.IsAdmin() {
		role = permission.RoleSubAdmin
	}

	perms, unknown := permission.ParseSet(rec.Permissions)
	for _, name := range unknown {
		// "all" is the historical spelling of an unrestricted admin.
		if strings.EqualFold(name, "all") {
			role = permission.RoleSuperAdmin
			continue
		}
		s.logger.Warn("unknown admin permission ignored", zap.String("id", rec.ID), zap.String("permission", name))
	}

	id := rec.ID
	if id == "" {
		id = "admin:" + strings.ToLower(rec.Email)
	}
	return portalauth.Identity{
		ID:          id,
		Kind:        session.KindAdmin,
		Email:       strings.ToLower(rec.Email),
		Name:        rec.Username,
		Role:        role,
		Permissions: perms,
		Credential:  rec.Password,
		Active:      !rec.Disabled,
	}
}

func (s *FileStore) isMaster(email string) bool {
	return s.master.Email != "" && email == s.master.Email
}

func (s *FileStore) masterIdentity() portalauth.Identity {
	return portalauth.Identity{
		ID:         masterAdminID,
		Kind:       session.KindAdmin,
		Email:      s.master.Email,
		Name:       "Admin",
		Role:       permission.RoleSuperAdmin,
		Credential: s.master.Password,
		Active:     true,
		Immutable:  true,
	}
}
