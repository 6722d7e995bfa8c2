package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/and161185/access-sync/internal/config"
	"github.com/and161185/access-sync/internal/platform"
	"github.com/and161185/access-sync/internal/platform/atlassian"
	"github.com/and161185/access-sync/internal/platform/google"
	"github.com/and161185/access-sync/internal/platform/jumpcloud"
	"github.com/and161185/access-sync/internal/platform/ldapdir"
	"github.com/and161185/access-sync/internal/platform/slack"
)

// buildAdapters constructs an adapter for every platform with credentials present.
func buildAdapters(ctx context.Context, cfg config.Config, log *zap.Logger) ([]platform.Adapter, error) {
	var out []platform.Adapter

	if c := cfg.JumpCloud; c.Configured() {
		out = append(out, jumpcloud.New(jumpcloud.Config{APIKey: c.APIKey, BaseURL: c.BaseURL, Logger: log}))
	}
	if c := cfg.Google; c.Configured() {
		a, err := google.New(ctx, google.Config{
			CredentialsFile: c.CredentialsFile,
			AdminEmail:      c.AdminEmail,
			Customer:        c.Customer,
			Logger:          log,
		})
		if err != nil {
			return nil, fmt.Errorf("google: %w", err)
		}
		out = append(out, a)
	}
	if c := cfg.Atlassian; c.Configured() {
		out = append(out, atlassian.New(atlassian.Config{OrgID: c.OrgID, APIKey: c.APIKey, Logger: log}))
	}
	if c := cfg.LDAP; c.Configured() {
		if c.PageSize <= 0 {
			return nil, fmt.Errorf("ldap: page size must be positive, got %d", c.PageSize)
		}
		out = append(out, ldapdir.New(ldapdir.Config{
			URL:          c.URL,
			BindDN:       c.BindDN,
			BindPassword: c.BindPassword,
			BaseDN:       c.BaseDN,
			Filter:       c.Filter,
			PageSize:     uint32(c.PageSize),
			Logger:       log,
		}))
	}
	if c := cfg.Slack; c.Configured() {
		if c.SCIMToken == "" {
			log.Warn("SLACK_SCIM_TOKEN is empty, slack suspension will fail")
		}
		out = append(out, slack.New(slack.Config{BotToken: c.BotToken, SCIMToken: c.SCIMToken, Logger: log}))
	}
	return out, nil
}
