// Package bot assembles the parley components into a runnable instance.
package bot
