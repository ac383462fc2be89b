// Command noxshop はストアフロントのAPIサーバー、掃除ワーカー、運用サブコマンドを提供する。
//
//	noxshop [serve]            APIサーバーを起動する
//	noxshop worker             孤立アップロードの掃除ワーカーを起動する
//	noxshop migrate            マイグレーションを適用する
//	noxshop healthcheck        /health を確認する（Dockerヘルスチェック用）
//	noxshop grant-admin <uid>  アカウントにADMINロールを付与する
package main

import (
	"fmt"
	"os"

	"github.com/hitoshi/noxshop/internal/app"
)

func main() {
	if err := app.Run(os.Stdout, os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
