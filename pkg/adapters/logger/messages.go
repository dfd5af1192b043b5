package logger

import "github.com/ideamans/go-l10n"

func init() {
	l10n.Register("ja", l10n.LexiconMap{
		// Orchestration
		"Opening project %s":                        "プロジェクト %s を開いています",
		"Failed to open project: %s":                "プロジェクトを開けませんでした: %s",
		"Project opened: %d sources, %d clips, %s":  "プロジェクトを開きました: ソース %d 件, クリップ %d 件, %s",
		"Project saved to %s":                       "プロジェクトを %s に保存しました",
		"Ignoring project background: %v":           "プロジェクトの背景色を無視します: %v",
		"Output saved to %s":                        "%s に保存しました",
		"Failed to export video: %s":                "動画の書き出しに失敗しました: %s",
		"Snapshot at %s written to %s":              "%s のスナップショットを %s に書き出しました",
		"%d thumbnails written to %s":               "サムネイル %d 件を %s に書き出しました",
		"Summary written to %s":                     "サマリーを %s に書き出しました",
		"Failed to write summary: %s":               "サマリーの書き出しに失敗しました: %s",
		"Using configuration %s":                    "設定ファイル %s を使用します",
		"Interrupted, shutting down...":             "中断されました。シャットダウン中...",

		// Sources
		"Source opened: %s (%s)":                                 "ソースを開きました: %s (%s)",
		"Source closed: %s":                                      "ソースを閉じました: %s",
		"Source %s failed: %v":                                   "ソース %s が失敗しました: %v",
		"Retrying source %s":                                     "ソース %s を再試行します",
		"Seek issued to %s (seq %d)":                             "%s へシーク (seq %d)",
		"Decoder spawned":                                        "デコーダーを起動しました",
		"Decoder exited: %v (attempt %d of %d)":                  "デコーダーが終了しました: %v (試行 %d / %d)",
		"Decoder failed: %v":                                     "デコーダーが失敗しました: %v",
		"Decoder close: %v":                                      "デコーダーの終了処理: %v",
		"Frame fetch failed for %s at index %d: %v":              "%s のフレーム %d の取得に失敗しました: %v",
		"ffmpeg unavailable, video sources cannot be decoded: %v": "ffmpeg が見つからないため動画ソースをデコードできません: %v",
		"ffprobe unavailable, probing MP4 headers only: %v":      "ffprobe が見つからないため MP4 ヘッダーのみ解析します: %v",
		"MP4 header probe failed for %s: %v":                     "%s の MP4 ヘッダー解析に失敗しました: %v",

		// Compositing
		"Composited %s with %d of %d layers failing": "%s を合成しました (%d / %d レイヤーが失敗)",
		"Failed to save composed frame %d: %v":       "合成フレーム %d の保存に失敗しました: %v",

		// Playback
		"State %s at %s":           "状態 %s (%s)",
		"Playback error at %s: %v": "%s で再生エラー: %v",

		// Export
		"Exporting %d frames at %.2f fps (%s) to %s": "%d フレームを %.2f fps (%s) で %s に書き出し中",
		"Exported %d/%d frames":                      "%d/%d フレームを書き出しました",
		"Export finished: %d frames in %s":           "書き出し完了: %d フレーム, %s",
		"Export aborted: %v":                         "書き出しを中止しました: %v",
		"Failed to discard partial output: %v":       "途中までの出力の削除に失敗しました: %v",
		"Encoding %dx%d at %.2f fps to %s":           "%dx%d, %.2f fps で %s にエンコード中",
		"Encoded %d frames to %s":                    "%d フレームを %s にエンコードしました",
	})
}
