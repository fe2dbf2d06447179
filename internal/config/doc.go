// Package config loads settings for the ripple command.
//
// Settings live in ripple.toml or ripple.json. The format is chosen from
// the file extension: ".toml" is decoded with BurntSushi/toml, anything
// else as JSON. Missing fields keep their defaults.
//
// # File Structure
//
//	[serve]
//	addr = "127.0.0.1:7070"
//	shutdownTimeout = "5s"
//	sendBuffer = 16
//
//	[bench]
//	projects = 1000
//	subtasks = 5
//	rounds = 3
//
//	[log]
//	level = "info"
//	format = "text"
//
//	[metrics]
//	enabled = true
//	namespace = "ripple"
//
// # Usage
//
//	cfg, err := config.LoadFile("ripple.toml")
//	if err != nil {
//	    errors.PrintError(os.Stderr, err)
//	    os.Exit(1)
//	}
//	fmt.Println("Inspector:", cfg.Serve.Addr)
package config
