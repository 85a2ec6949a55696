// Command collector runs the board crawl scheduler.
//
// By default it serves until SIGINT or SIGTERM: sources fire on their cron
// schedules, workers crawl and persist, and the ops API listens on
// server.port. With -once it runs a single source in the foreground and exits.
//
//	collector -config config.yaml
//	collector -config config.yaml -once clien
package main
