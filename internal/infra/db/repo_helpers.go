package db

import "noskid/internal/domain"

var errDBUnavailable = domain.ErrDBUnavailable

func stringPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
