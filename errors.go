/*
Copyright © 2025 Seednode <seednode@seedno.de>
*/

package main

import (
	"errors"
	"fmt"
	"log"
	"strings"
	"time"
)

// Game errors, surfaced to the requesting connection only as an error
// frame. None of them closes the connection or touches another room.
// The messages are the exact strings the web client matches on.
var (
	errRoomNotFound       = errors.New("Room not found")
	errGameEnded          = errors.New("Game has already ended")
	errGameNotActive      = errors.New("Game not active")
	errPlayerNotFound     = errors.New("Player not found")
	errNotGameMasterStart = errors.New("Only the game master can start the game")
	errNotGameMasterNext  = errors.New("Only the game master can advance to the next question")
)

func logf(cfg *Config, format string, args ...any) {
	if !cfg.verbose {
		return
	}

	log.Printf("%s | "+format, append([]any{time.Now().Format(logDate)}, args...)...)
}

func newPage(title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"/\">%s</a></body></html>", body))

	return htmlBody.String()
}
