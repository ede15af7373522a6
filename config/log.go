// Copyright (c) 2019,CAOHONGJU All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"flag"
	"os"

	"github.com/cnotch/xlog"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig 日志配置
type LogConfig struct {
	// Level 日志级别；debug 级别会记录每帧的流水线状态
	Level xlog.Level `json:"level"`

	// ToFile 是否同时写入滚动日志文件
	ToFile bool `json:"tofile"`

	// Filename 日志文件名称
	Filename string `json:"filename"`

	// MaxSize 单个日志文件的最大尺寸，MB
	MaxSize int `json:"maxsize"`

	// MaxDays 旧日志最多保存多少天
	MaxDays int `json:"maxdays"`

	// MaxBackups 旧日志最多保持数量
	MaxBackups int `json:"maxbackups"`

	// Compress 是否用 gzip 压缩旧日志
	Compress bool `json:"compress"`
}

func (c *LogConfig) initFlags() {
	flag.Var(&c.Level, "log-level",
		"Set the log level to output")
	flag.BoolVar(&c.ToFile, "log-tofile", false,
		"Determines if logs should be saved to file")
	flag.StringVar(&c.Filename, "log-filename",
		"./logs/"+Name+".log", "Set the file to write logs to")
	flag.IntVar(&c.MaxSize, "log-maxsize", 20,
		"Set the maximum size in megabytes of the log file before it gets rotated")
	flag.IntVar(&c.MaxDays, "log-maxdays", 7,
		"Set the maximum days of old log files to retain")
	flag.IntVar(&c.MaxBackups, "log-maxbackups", 14,
		"Set the maximum number of old log files to retain")
	flag.BoolVar(&c.Compress, "log-compress", false,
		"Determines if the log files should be compressed")
}

// fileWriter 滚动日志文件
func (c *LogConfig) fileWriter() *lumberjack.Logger {
	return &lumberjack.Logger{
		Filename:   c.Filename,
		MaxSize:    c.MaxSize,
		MaxBackups: c.MaxBackups,
		MaxAge:     c.MaxDays,
		LocalTime:  true,
		Compress:   c.Compress,
	}
}

// newLogger 控制台输出文本，文件输出 JSON
func (c *LogConfig) newLogger() *xlog.Logger {
	console := xlog.NewCore(xlog.NewConsoleEncoder(xlog.LstdFlags|xlog.Lmicroseconds|xlog.Llongfile),
		xlog.Lock(os.Stderr), c.Level)
	if !c.ToFile {
		return xlog.New(console, xlog.AddCaller())
	}

	file := xlog.NewCore(xlog.NewJSONEncoder(xlog.Llongfile), c.fileWriter(), c.Level)
	return xlog.New(xlog.NewTee(console, file), xlog.AddCaller())
}

func (c *LogConfig) initLogger() {
	xlog.ReplaceGlobal(c.newLogger())
}
