package minioadmin

import (
	"context"
)

// User is a MinIO user, the username doubling as its access key.
type User struct {
	Username string
	Password string
}

// ApplyUser creates the user or resets its password.
func (s *Service) ApplyUser(ctx context.Context, user User) error {
	return s.action(ctx, ErrCreateUserFailed, "admin", "user", "add", s.alias, user.Username, user.Password)
}

type userEntry struct {
	AccessKey string `json:"accessKey"`
}

func (s *Service) ListUsers(ctx context.Context) ([]string, error) {
	entries, err := queryAll[userEntry](ctx, s, "admin", "user", "list", s.alias)
	if err != nil {
		return nil, err
	}

	users := make([]string, 0, len(entries))
	for _, e := range entries {
		users = append(users, e.AccessKey)
	}
	return users, nil
}

type userEntities struct {
	Result struct {
		UserMappings []struct {
			Policies []string `json:"policies"`
		} `json:"userMappings"`
	} `json:"result"`
}

// UserPolicies returns the policies directly attached to the user.
func (s *Service) UserPolicies(ctx context.Context, username string) ([]string, error) {
	entities, err := query[userEntities](ctx, s, "admin", "policy", "entities", s.alias, "--user", username)
	if err != nil {
		return nil, err
	}
	if len(entities.Result.UserMappings) == 0 {
		return []string{}, nil
	}
	return entities.Result.UserMappings[0].Policies, nil
}

// AttachPolicy attaches the policy to the user. It issues no mutating command
// when the policy is already attached.
func (s *Service) AttachPolicy(ctx context.Context, username, policy string) error {
	policies, err := s.UserPolicies(ctx, username)
	if err != nil {
		return err
	}
	for _, p := range policies {
		if p == policy {
			return nil
		}
	}

	s.logger.V(1).Info("attaching policy", "user", username, "policy", policy)
	return s.action(ctx, ErrAttachPolicyFailed, "admin", "policy", "attach", s.alias, policy, "--user", username)
}
