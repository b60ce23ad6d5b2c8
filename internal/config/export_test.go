package config

var NewLogger = newLogger
