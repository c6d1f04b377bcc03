package app

import (
	"fmt"
	"strings"
)

// Command はrentalsバイナリのサブコマンド。
type Command string

const (
	// CommandServe はAPIサーバーを起動する。引数なしの場合の既定。
	CommandServe Command = "serve"
	// CommandWorker は失効済みセッションの掃除ジョブを起動する。
	CommandWorker Command = "worker"
	// CommandMigrate はスキーマ（PostgreSQLのマイグレーションまたはMongoDBのインデックス）を適用する。
	CommandMigrate Command = "migrate"
	// CommandHealthcheck は稼働中のサーバーの/healthを確認する。
	// シェルのないdistrolessイメージのHEALTHCHECK用。
	CommandHealthcheck Command = "healthcheck"
)

var commands = []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck}

// Usage はサブコマンドの一覧を返す。
func Usage() string {
	names := make([]string, len(commands))
	for i, c := range commands {
		names[i] = string(c)
	}
	return "usage: rentals [" + strings.Join(names, "|") + "]"
}

// ParseCommand は先頭の引数をサブコマンドとして解釈する。2番目以降の引数は無視する。
// 引数がない場合はCommandServe、未知のサブコマンドはエラーを返す。
func ParseCommand(args []string) (Command, error) {
	if len(args) == 0 {
		return CommandServe, nil
	}

	for _, c := range commands {
		if args[0] == string(c) {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown command %q (%s)", args[0], Usage())
}
