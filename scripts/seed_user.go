package main

import (
	"context"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"guava/internal/config"
	"guava/internal/model/auth"
	"guava/internal/pkg/id"
	"guava/internal/pkg/logger"
	"guava/internal/pkg/mongodb"
	"guava/internal/pkg/password"
	authrepo "guava/internal/repository/auth"
)

// 本地开发用：创建一个可直接登录的种子用户
func main() {
	// 1. 加载配置（与 cmd/root.go 保持一致的搜索路径）
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.guava")

	viper.SetEnvPrefix("GUAVA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
		os.Exit(1)
	}

	var cfg config.Config
	if err := viper.Unmarshal(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	// 2. 连接 MongoDB
	client, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect mongo")
	}
	defer func() {
		_ = client.Close(context.Background())
	}()

	db := client.Database()
	ctx := context.Background()

	userRepo := authrepo.NewUserRepo(db)

	// 3. 读取环境变量或使用默认值
	username := os.Getenv("SEED_USERNAME")
	if username == "" {
		username = "demo"
	}
	passwordPlain := os.Getenv("SEED_PASSWORD")
	if passwordPlain == "" {
		passwordPlain = "demo123"
	}
	email := os.Getenv("SEED_EMAIL")
	if email == "" {
		email = "demo@example.com"
	}

	// 4. 已存在则直接退出
	if existing, err := userRepo.FindByUsername(ctx, username); err == nil && existing != nil {
		fmt.Printf("User already exists: username=%s\n", username)
		return
	}

	hashed, err := password.Hash(passwordPlain)
	if err != nil {
		log.Fatal().Err(err).Msg("hash password failed")
	}

	user := &auth.User{
		ID:       id.New(),
		Username: username,
		Email:    email,
		Password: hashed,
		Status:   auth.UserStatusActive,
	}

	if err := userRepo.Create(ctx, user); err != nil {
		log.Fatal().Err(err).Msg("create seed user failed")
	}

	fmt.Printf("Seed user created: username=%s password=%s\n", username, passwordPlain)
}
