package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	_ "github.com/lib/pq"

	bankfair "bankfair_client"
	"bankfair_client/internal/wallet"
	"bankfair_client/pkg/bridge"
	"bankfair_client/pkg/handler"
	"bankfair_client/pkg/ledger"
	"bankfair_client/pkg/notify"
	"bankfair_client/pkg/pricefeed"
	"bankfair_client/pkg/repository"
	"bankfair_client/pkg/service"
	"bankfair_client/pkg/session"
)

func main() {
	logrus.SetFormatter(new(logrus.JSONFormatter))
	logrus.Infoln("starting bankfair client")
	if err := godotenv.Load(); err != nil {
		logrus.Infof("no .env loaded: %s", err)
	}

	if err := InitConfig(); err != nil {
		logrus.Fatalf("viper: reading configs/config.yml: %s", err.Error())
	}
	if lvl, err := logrus.ParseLevel(viper.GetString("app.log_level")); err == nil {
		logrus.SetLevel(lvl)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, closeStore := sessionStore()
	defer closeStore()

	keys, err := signingKeys()
	if err != nil {
		logrus.Fatalf("loading wallet keys: %s", err)
	}

	appNetwork := viper.GetUint64("app.network_id")
	chains, err := chainEndpoints()
	if err != nil {
		logrus.Fatalf("reading chains: %s", err)
	}
	br, err := bridge.New(ctx, bridge.Config{Chains: chains, Initial: appNetwork}, keys, bridge.DialEth)
	if err != nil {
		logrus.Fatalf("connecting to chain %d: %s", appNetwork, err)
	}
	defer br.Close()
	logrus.WithField("network_id", appNetwork).Info("node connected")

	poolContract, err := ledger.NewBoundContract(common.HexToAddress(viper.GetString("contracts.pool")), ledger.PoolABI, br)
	if err != nil {
		logrus.Fatal(err)
	}
	pool := ledger.NewPool(poolContract)
	tokenAddress, err := pool.Token(ctx)
	if err != nil {
		logrus.Fatalf("reading pool token: %s", err)
	}
	tokenContract, err := ledger.NewBoundContract(tokenAddress, ledger.TokenABI, br)
	if err != nil {
		logrus.Fatal(err)
	}
	token := ledger.NewToken(tokenContract)

	meta, err := service.LoadMeta(ctx, pool, token)
	if err != nil {
		logrus.Fatalf("loading pool metadata: %s", err)
	}
	logrus.WithFields(logrus.Fields{
		"pool":    meta.PoolAddress.Hex(),
		"token":   meta.TokenAddress.Hex(),
		"symbol":  meta.Symbol,
		"manager": meta.Manager.Hex(),
	}).Info("pool metadata loaded")

	gate := session.New(store, br, appNetwork)
	if err := gate.Load(ctx); err != nil {
		logrus.WithError(err).Warn("restoring session failed, starting logged out")
	}
	go func() {
		if err := gate.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logrus.WithError(err).Error("session watcher stopped")
		}
	}()

	explorer := viper.GetString("app.explorer_url")
	deps := service.Deps{
		Pool:        pool,
		Token:       token,
		Meta:        meta,
		Session:     gate,
		ExplorerURL: explorer,
		Base:        ctx,
		WizardTTL:   viper.GetDuration("app.wizard_ttl"),
	}
	if viper.GetBool("pricefeed.enabled") {
		deps.Prices = pricefeed.New(pricefeed.Config{
			BaseURL:  viper.GetString("pricefeed.base_url"),
			APIKey:   os.Getenv("COINGECKO_API_KEY"),
			Currency: viper.GetString("pricefeed.currency"),
			Timeout:  viper.GetDuration("pricefeed.timeout"),
			CacheTTL: viper.GetDuration("pricefeed.cache_ttl"),
		})
	}
	if mailer := notify.New(notify.Config{
		APIKey:      os.Getenv("MAILJET_API_KEY"),
		SecretKey:   os.Getenv("MAILJET_SECRET_KEY"),
		FromEmail:   viper.GetString("notify.from_email"),
		FromName:    viper.GetString("notify.from_name"),
		ToEmail:     viper.GetString("notify.to_email"),
		ExplorerURL: explorer,
	}); mailer != nil {
		deps.Notifier = mailer
	}

	services := service.NewService(deps)
	handlers := handler.NewHandler(services, viper.GetStringSlice("cors.origins"))

	srv := new(bankfair.Server)
	go func() {
		if err := srv.Run(os.Getenv("PORT"), handlers.InitRoute()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.Fatalf("http server: %s", err)
		}
	}()
	logrus.WithField("port", os.Getenv("PORT")).Info("http server started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT)
	<-quit
	logrus.Info("shutting down")

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Errorf("http server shutdown: %s", err)
	}
}

func InitConfig() error {
	viper.AddConfigPath("configs")
	viper.SetConfigName("config")
	return viper.ReadInConfig()
}

// sessionStore uses Postgres when db.host is configured and keeps the
// session in memory otherwise.
func sessionStore() (repository.SessionStore, func()) {
	if viper.GetString("db.host") == "" {
		logrus.Warn("db.host not set, session is kept in memory")
		return repository.NewMemorySession(), func() {}
	}
	db, err := repository.NewPostgresDB(repository.Config{
		Host:     viper.GetString("db.host"),
		Port:     viper.GetString("db.port"),
		Username: viper.GetString("db.username"),
		Password: os.Getenv("DB_PASS"),
		DBName:   viper.GetString("db.dbname"),
		SSLMode:  viper.GetString("db.sslmode"),
	})
	if err != nil {
		logrus.Fatalf("database: %s", err.Error())
	}
	if err := repository.Migrate(db); err != nil {
		logrus.Fatalf("database migration: %s", err.Error())
	}
	logrus.Info("database connected")
	return repository.NewRepository(db).SessionStore, func() { _ = db.Close() }
}

// signingKeys reads WALLET_PRIVATE_KEY (comma separated). Without it a
// throwaway key is generated, which only makes sense on a dev chain.
func signingKeys() ([]*wallet.Wallet, error) {
	if list := os.Getenv("WALLET_PRIVATE_KEY"); list != "" {
		return wallet.FromList(list)
	}
	w, err := wallet.Generate()
	if err != nil {
		return nil, err
	}
	logrus.WithField("address", w.Address.Hex()).Warn("WALLET_PRIVATE_KEY not set, using a generated key")
	return []*wallet.Wallet{w}, nil
}

func chainEndpoints() (map[uint64]string, error) {
	out := map[uint64]string{}
	for key := range viper.GetStringMap("chains") {
		id, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "chain id %q", key)
		}
		out[id] = viper.GetString("chains." + key + ".rpc_url")
	}
	return out, nil
}
