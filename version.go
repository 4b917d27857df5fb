package main

// 版本信息，通过构建时 ldflags 注入:
//
//	go build -ldflags "-X main.Version=v1.2.0 -X main.BuildTime=2025-01-01 -X main.GitCommit=abc1234"
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)
