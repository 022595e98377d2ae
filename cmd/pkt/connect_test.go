package main

import (
	"strings"
	"testing"

	"github.com/zulandar/reactoryard/internal/config"
	"github.com/zulandar/reactoryard/internal/notify"
)

func TestAddSinks(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.EventsConfig
		want int
	}{
		{"none", config.EventsConfig{}, 0},
		{"kafka only", config.EventsConfig{Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "pkt"}}, 1},
		{"all", config.EventsConfig{
			Kafka:   config.KafkaConfig{Brokers: []string{"localhost:9092"}, Topic: "pkt"},
			Slack:   config.ChatConfig{BotToken: "xoxb-test", Channel: "C123"},
			Discord: config.ChatConfig{BotToken: "discord-test", Channel: "456"},
		}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := notify.NewFanout(nil)
			if err := addSinks(f, tt.cfg); err != nil {
				t.Fatalf("addSinks: %v", err)
			}
			if f.Len() != tt.want {
				t.Errorf("sinks = %d, want %d", f.Len(), tt.want)
			}
			f.Close()
		})
	}
}

func TestAddSinks_KafkaWithoutTopic(t *testing.T) {
	f := notify.NewFanout(nil)
	err := addSinks(f, config.EventsConfig{Kafka: config.KafkaConfig{Brokers: []string{"localhost:9092"}}})
	if err == nil || !strings.Contains(err.Error(), "topic is required") {
		t.Errorf("err = %v, want topic is required", err)
	}
}

func TestDatabaseLabel(t *testing.T) {
	if got := databaseLabel(config.DatabaseConfig{Driver: "sqlite", Path: "/tmp/pkt.db"}); got != "/tmp/pkt.db" {
		t.Errorf("sqlite label = %q", got)
	}
	got := databaseLabel(config.DatabaseConfig{Driver: "postgres", Host: "db", Port: 5432, Database: "pktrack_a"})
	if got != "postgres db:5432/pktrack_a" {
		t.Errorf("postgres label = %q", got)
	}
}
