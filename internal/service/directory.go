package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sakif/botnet/internal/model"
)

// SearchProfiles finds profiles whose username or display name contains
// query, ignoring case. Results come back in storage order; there is no
// ranking and no pagination. A blank query matches nothing.
func (s *ProfileService) SearchProfiles(ctx context.Context, query string) (results []model.ProfileSummary, err error) {
	defer observe("search_profiles", time.Now(), &err)

	needle := strings.ToLower(strings.TrimSpace(query))
	if needle == "" {
		return []model.ProfileSummary{}, nil
	}

	ctx, cancel := withTimeout(ctx, s.timeout)
	defer cancel()

	results, err = s.profiles.Search(ctx, needle)
	if err != nil {
		return nil, fmt.Errorf("search profiles: %w", err)
	}
	return results, nil
}
