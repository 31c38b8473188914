// Package config loads fetchrun's configuration.
//
// Configuration is layered: built-in defaults (Default), an optional Lua file
// evaluated in a sandboxed VM, then command-line flags and FETCHRUN_*
// environment variables applied by the CLI. The result is checked with
// Validate before use.
//
// # Lua Format
//
// The file must define a global `fetchrun` table. Every key is optional:
//
//	fetchrun = {
//	  repo = "yeongpin/cursor-free-vip",
//	  project = "CursorFreeVIP",
//	  version = "1.11.3", -- omit for the latest release
//	  downloads_dir = "/home/me/Downloads",
//	  parallelism = 4,
//	  small_file_threshold = 1048576,
//	  progress_interval_ms = 200,
//	  progress_step = 1,
//	  launch = true,
//	  elevate = platform.when(platform.is_linux, true),
//	  args = { "--lang", "en" },
//	}
//
// The read-only `platform` table describes the host (see the platform
// package). The os, io, require, load* and debug libraries are removed so a
// config cannot run commands or read files.
package config
