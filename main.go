package main

import (
	"os"

	"ChatRelay/logger"

	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logger.Error("chat-relay exited", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}
