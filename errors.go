/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// newLogger writes human-readable lines to stderr. Only warnings and errors
// are shown unless --verbose is set.
func newLogger(cfg *Config) (*zap.Logger, error) {
	level := zapcore.WarnLevel
	if cfg.verbose {
		level = zapcore.DebugLevel
	}

	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.Development = false
	zc.DisableStacktrace = true
	zc.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(logDate)
	zc.EncoderConfig.ConsoleSeparator = " | "

	return zc.Build()
}

func logf(cfg *Config, format string, args ...any) {
	cfg.logger.Sugar().Infof(format, args...)
}

func newPage(cfg *Config, title, body string) string {
	var htmlBody strings.Builder

	htmlBody.WriteString(`<!DOCTYPE html><html lang="en"><head>`)
	htmlBody.WriteString(getFavicon(cfg))
	htmlBody.WriteString(`<style>`)
	htmlBody.WriteString(`html,body,a{display:block;height:100%;width:100%;text-decoration:none;color:inherit;cursor:auto;}</style>`)
	htmlBody.WriteString(fmt.Sprintf("<title>%s</title></head>", title))
	htmlBody.WriteString(fmt.Sprintf("<body><a href=\"%s/\">%s</a></body></html>", cfg.prefix, body))

	return htmlBody.String()
}
