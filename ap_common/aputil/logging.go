/*
 * Copyright 2020 Brightgate Inc.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at https://mozilla.org/MPL/2.0/.
 */


package aputil

import (
	"flag"
	"log"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	levelFlag = zapcore.InfoLevel

	// All loggers built by NewLogger share this level, so it can be changed
	// at runtime.
	atomicLevel = zap.NewAtomicLevel()

	// -log-level is only known after flag.Parse, but it must not clobber a
	// level set since then.
	levelOnce sync.Once
)

func zapTimeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006/01/02 15:04:05"))
}

// NewLogger returns a 'sugared' zap logger.  Each logged line will include a
// timestamp, the log level, and 2 levels of caller name before the message.
// e.g.:
//	2020/06/02 10:23:27     INFO    ap.wifid/loop.go:121   ap1 up ...
func NewLogger(pname string) *zap.SugaredLogger {
	levelOnce.Do(func() { atomicLevel.SetLevel(levelFlag) })

	zapConfig := zap.NewDevelopmentConfig()
	zapConfig.Level = atomicLevel
	zapConfig.DisableStacktrace = true
	zapConfig.Development = false
	zapConfig.EncoderConfig.EncodeTime = zapTimeEncoder

	logger, err := zapConfig.Build()
	if err != nil {
		log.Panicf("can't zap: %s", err)
	}
	_ = zap.RedirectStdLog(logger)

	return logger.Sugar().Named(pname)
}

// LogSetLevel changes the level of all loggers created by NewLogger.  Its
// signature allows it to be used as a settings callback.
func LogSetLevel(name, val string) error {
	var l zapcore.Level

	if err := l.Set(val); err != nil {
		return err
	}
	atomicLevel.SetLevel(l)
	return nil
}

func init() {
	flag.Var(&levelFlag, "log-level",
		"Log level [debug,info,warn,error,panic,fatal]")
}
