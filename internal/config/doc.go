// Package config loads the parley YAML configuration.
//
// Configuration is a single YAML file. ${VAR_NAME} references anywhere in
// the file are expanded from the environment before parsing, which keeps
// secrets like the bot token out of the file itself. Duration fields are
// written as Go duration strings ("30s", "2m") and parsed after unmarshaling.
//
// Example:
//
//	telegram:
//	  token: ${TELEGRAM_BOT_TOKEN}
//	  poll_timeout: 30s
//	database:
//	  path: /var/lib/parley/parley.db
//	openai:
//	  api_key: ${OPENAI_API_KEY}
//	  model: gpt-4o-mini
//	  request_timeout: 60s
//	prompt:
//	  path: /etc/parley/system_prompt.txt
//	logging:
//	  level: info
//	  format: text
package config
