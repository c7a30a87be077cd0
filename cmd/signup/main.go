package main

import (
	"context"
	"log"
	"os"

	"github.com/dalemusser/signup/app"
	"github.com/dalemusser/signup/internal/app/bootstrap"
	"github.com/dalemusser/signup/toolkit/windowsservice"
)

func main() {
	if windowsservice.UnderServiceManager() {
		err := windowsservice.Run(windowsservice.Config{
			Name:        "signup",
			DisplayName: "Signup",
			Description: "Registration form service with live validation.",
		}, bootstrap.Hooks)
		if err != nil {
			log.Fatal(err)
		}
		return
	}

	// app.Run has already logged the failure.
	if err := app.Run(context.Background(), bootstrap.Hooks); err != nil {
		os.Exit(1)
	}
}
