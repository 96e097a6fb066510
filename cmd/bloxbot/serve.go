package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/blox-verify/internal/application/challenge"
	"github.com/blox-verify/internal/application/credit"
	"github.com/blox-verify/internal/application/moderation"
	"github.com/blox-verify/internal/application/verification"
	"github.com/blox-verify/internal/config"
	jwtinfra "github.com/blox-verify/internal/infrastructure/jwt"
	"github.com/blox-verify/internal/infrastructure/metrics"
	"github.com/blox-verify/internal/infrastructure/ratelimit"
	"github.com/blox-verify/internal/infrastructure/roblox"
	"github.com/blox-verify/internal/infrastructure/sns"
	"github.com/blox-verify/internal/transport/discord"
	transporthttp "github.com/blox-verify/internal/transport/http"
	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the bots and the admin HTTP API",
		Long: `Starts every bot whose DISCORD_*_TOKEN is set, the periodic channel purge and
the HTTP server (health checks, /metrics and, when JWT keys are present, /v1/admin).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			setupLogging(cfg)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func issueLimiter(ctx context.Context, cfg *config.Config) (verification.IssueLimiter, func(), error) {
	if cfg.IssueMaxPerWindow <= 0 {
		return nil, func() {}, nil
	}
	if cfg.RedisURL == "" {
		return ratelimit.NewLocal(cfg.IssueMaxPerWindow, cfg.IssueWindow), func() {}, nil
	}
	rdb, err := ratelimit.Connect(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	l := ratelimit.NewRedis(rdb, "bloxbot:issue", cfg.IssueMaxPerWindow, cfg.IssueWindow)
	return l, func() { _ = rdb.Close() }, nil
}

func serve(ctx context.Context, cfg *config.Config) error {
	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("open %s store: %w", cfg.StoreBackend, err)
	}
	defer st.close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	limiter, closeLimiter, err := issueLimiter(ctx, cfg)
	if err != nil {
		return fmt.Errorf("issue limiter: %w", err)
	}
	defer closeLimiter()

	profiles := roblox.NewClient(roblox.Endpoints{
		Users:   cfg.RobloxUsersBase,
		Thumbs:  cfg.RobloxThumbsBase,
		Games:   cfg.RobloxGamesBase,
		Catalog: cfg.RobloxCatalogBase,
		Groups:  cfg.RobloxGroupsBase,
		Web:     cfg.RobloxWebBase,
	}, cfg.ProfileTimeout, m)

	registry := challenge.NewRegistry(cfg.CodeLength, cfg.CodeExpiry)
	defer registry.Close()
	m.ObservePendingChallenges(registry.Len)

	credits := credit.NewService(st.verifications, cfg.InitialCredits, m)

	modDeps := moderation.ServiceDeps{
		Submissions:   st.submissions,
		Verifications: st.verifications,
		Credits:       credits,
		Metrics:       m,
	}
	if cfg.SNSTopicARN != "" {
		pub, err := sns.NewFromConfig(ctx, cfg)
		if err != nil {
			slog.Warn("staff alerts disabled", "err", err)
		} else {
			modDeps.Alerter = pub
		}
	}
	mod := moderation.NewService(modDeps)

	// Sessions are created up front so the verification service can DM and manage roles
	// through the verify bot even before its gateway connects.
	dc := cfg.Discord
	verifyDeps := verification.ServiceDeps{
		Registry:       registry,
		Profiles:       profiles,
		Store:          st.verifications,
		Limiter:        limiter,
		Metrics:        m,
		InitialCredits: cfg.InitialCredits,
	}
	var verifySession *discordgo.Session
	var verifyGuild *discord.Guild
	if dc.VerifyToken != "" {
		if verifySession, err = discord.NewSession(dc.VerifyToken); err != nil {
			return err
		}
		verifyGuild = discord.NewGuild(verifySession, dc.GuildID, dc.VerifiedRole)
		verifyDeps.Notifier = verifyGuild
		verifyDeps.Roles = verifyGuild
	}
	verifier := verification.NewService(verifyDeps)

	var jwtProvider *jwtinfra.Provider
	if p, err := jwtinfra.NewProvider(cfg); err == nil {
		jwtProvider = p
	} else {
		slog.Warn("admin API disabled: JWT provider not available", "err", err)
	}

	router := transporthttp.NewRouter(cfg, &transporthttp.Deps{
		Verification: verifier,
		Credits:      credits,
		Moderation:   mod,
		JWTProvider:  jwtProvider,
		Gatherer:     reg,
	})
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.AppPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "port", cfg.AppPort, "env", cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if verifySession != nil {
		bot := discord.NewVerifyBot(verifySession, discord.VerifyDeps{
			Verification: verifier,
			Profiles:     profiles,
			Guild:        verifyGuild,
			Config:       dc,
		})
		purger := discord.NewPurger(verifySession, verifyGuild, dc.PurgeInterval, dc.VerifyChannel)
		g.Go(func() error { return discord.Run(ctx, verifySession, bot) })
		g.Go(func() error { purger.Run(ctx); return nil })
	} else {
		slog.Warn("verify bot disabled: DISCORD_VERIFY_TOKEN not set")
	}

	if dc.InfoToken != "" {
		s, err := discord.NewSession(dc.InfoToken)
		if err != nil {
			return err
		}
		bot := discord.NewInfoBot(s, discord.InfoDeps{
			Guild:  discord.NewGuild(s, dc.GuildID, dc.VerifiedRole),
			Config: dc,
		})
		g.Go(func() error { return discord.Run(ctx, s, bot) })
	} else {
		slog.Warn("info bot disabled: DISCORD_INFO_TOKEN not set")
	}

	if dc.AdvertiseToken != "" {
		s, err := discord.NewSession(dc.AdvertiseToken)
		if err != nil {
			return err
		}
		guild := discord.NewGuild(s, dc.GuildID, dc.VerifiedRole)
		bot := discord.NewAdvertiseBot(s, discord.AdvertiseDeps{
			Moderation: mod,
			Assets:     profiles,
			Guild:      guild,
			Config:     dc,
		})
		purger := discord.NewPurger(s, guild, dc.PurgeInterval, dc.AdCommandsChannel)
		g.Go(func() error { return discord.Run(ctx, s, bot) })
		g.Go(func() error { purger.Run(ctx); return nil })
	} else {
		slog.Warn("advertise bot disabled: DISCORD_ADVERTISE_TOKEN not set")
	}

	err = g.Wait()
	slog.Info("stopped")
	return err
}
