package main

import (
	"github.com/bwmarrin/snowflake"
	"github.com/schuelerfirma/kiosk/internal/clock"
	"github.com/schuelerfirma/kiosk/internal/config"
	"github.com/schuelerfirma/kiosk/internal/logger"
	"github.com/schuelerfirma/kiosk/internal/server"
	"github.com/schuelerfirma/kiosk/pkg/db"
	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
