// Package main provides localization for the dusk CLI.
package main

import (
	"github.com/ideamans/go-l10n"
)

func init() {
	// Register Japanese translations for CLI messages.
	l10n.Register("ja", l10n.LexiconMap{
		// Flag categories
		"Output":            "出力先",
		"Range":             "範囲",
		"Video and Quality": "動画と品質",
		"Preview":           "プレビュー",
		"Debug":             "デバッグ",
		"Logging":           "ログ",
		"External Tools":    "外部ツール",

		// Root command
		"Preview and render layered video timelines": "レイヤー構成の動画タイムラインをプレビュー・レンダリング",
		"dusk composites clips from video files and still images into previews, snapshots and rendered videos.": "duskは動画ファイルと静止画のクリップを合成し、プレビュー、スナップショット、動画を作成します。",

		// Global flags
		"Configuration file (default: ./dusk.yaml, ~/.config/dusk/config.yaml)": "設定ファイル（デフォルト: ./dusk.yaml, ~/.config/dusk/config.yaml）",
		"Log level (debug, info, warn, error)":                                  "ログレベル（debug, info, warn, error）",
		"Log format (console, json)":                                            "ログ形式（console, json）",
		"Suppress all log output":                                               "すべてのログ出力を抑制",
		"Save the project and composed frames for debugging":                    "デバッグ用にプロジェクトと合成フレームを保存",
		"Directory for debug output":                                            "デバッグ出力先ディレクトリ",
		"Path to ffmpeg (falls back to FFMPEG_PATH, then PATH)":                 "ffmpegのパス（未指定時はFFMPEG_PATH、次にPATHを使用）",
		"Path to ffprobe (falls back to FFPROBE_PATH, then PATH)":               "ffprobeのパス（未指定時はFFPROBE_PATH、次にPATHを使用）",
		"Compositor workers (default: number of CPUs)":                          "合成ワーカー数（デフォルト: CPU数）",

		// Shared flags
		"Output width (default: project setting)":  "出力の幅（デフォルト: プロジェクト設定）",
		"Output height (default: project setting)": "出力の高さ（デフォルト: プロジェクト設定）",

		// Create command
		"Create a project from media files": "メディアファイルからプロジェクトを作成",
		"Places each file on track 0 one after another, or each on its own track from the start with --layered. A .yaml or .yml project is written as YAML, anything else as MessagePack.": "各ファイルをトラック0に順に並べます。--layered を指定すると各ファイルを別トラックの先頭に配置します。.yaml / .yml のプロジェクトはYAML、それ以外はMessagePackで保存します。",
		"Put each file on its own track, later files on top":      "各ファイルを別トラックに配置（後のファイルが上）",
		"Project frame rate":                                      "プロジェクトのフレームレート",
		"Background color (hex, e.g., #191923)":                   "背景色（16進数、例: #191923）",
		"Length of still images":                                  "静止画の長さ",
		"a project path and at least one media file are required": "プロジェクトパスと1つ以上のメディアファイルが必要です",
		"%s: %d clips on %d tracks, %s":                           "%s: クリップ %d 件, トラック %d 本, %s",

		// Export command
		"Render a project to a video file":                                   "プロジェクトを動画ファイルに書き出し",
		"Output video file path (required)":                                  "出力動画ファイルパス（必須）",
		"Output frame rate (default: project setting)":                       "出力フレームレート（デフォルト: プロジェクト設定）",
		"Write a Markdown export summary to this path":                       "書き出しサマリー（Markdown）の出力先",
		"Timeline position to start from":                                    "開始するタイムライン位置",
		"Timeline position to stop at (default: end of timeline)":            "終了するタイムライン位置（デフォルト: タイムラインの終わり）",
		"Quality preset (low, medium, high)":                                 "品質プリセット（low, medium, high）",
		"Video CRF value (0-63, lower is better, overrides quality preset)":  "動画のCRF値（0-63、低いほど高品質、品質プリセットを上書き）",
		"Target bitrate in kbps":                                             "目標ビットレート（kbps）",
		"ffmpeg video codec (e.g., libx264, libx265, libsvtav1)":             "ffmpegの動画コーデック（例: libx264, libx265, libsvtav1）",
		"exactly one project path is required":                               "プロジェクトパスを1つ指定してください",
		"Rendering frame %d/%d":                                              "フレーム %d/%d をレンダリング中",
		"%s: %d frames, %s at %s, rendered in %s":                            "%s: %d フレーム, %s, %s, レンダリング時間 %s",

		// Snapshot command
		"Render one frame of a project to a PNG image": "プロジェクトの1フレームをPNG画像に書き出し",
		"Output PNG file path (required)":              "出力PNGファイルパス（必須）",
		"Timeline position to render":                  "レンダリングするタイムライン位置",
		"%s: %s at %s, %d layers":                      "%s: %s, 位置 %s, レイヤー %d 件",

		// Preview command
		"Play a project off-screen and report playback statistics":                       "プロジェクトを画面外で再生し、再生統計を表示",
		"Timeline position to start playing from":                                        "再生を開始するタイムライン位置",
		"How long to play":                                                               "再生時間",
		"Preview frame rate":                                                             "プレビューのフレームレート",
		"What a late layer shows: reuse (previous frame) or wait":                        "遅れたレイヤーの表示方法: reuse（前のフレーム）または wait",
		"Write a PNG thumbnail of every picture clip":                                    "すべての映像クリップのPNGサムネイルを書き出す",
		"Directory to write thumbnails to":                                               "サムネイルの書き出し先ディレクトリ",
		"Largest thumbnail width":                                                        "サムネイルの最大幅",
		"Largest thumbnail height":                                                       "サムネイルの最大高さ",
		"%s: %s (%s)":                                                                    "%s: %s (%s)",
		"Save the last presented frame as PNG":                                           "最後に表示したフレームをPNGで保存",
		"Times to retry a source whose decoder keeps crashing":                           "デコーダーがクラッシュし続けるソースを再試行する回数",
		"Played %s to %s at %s":                                                          "%s を %s まで再生しました (%s)",
		"Presented %d frames (%.1f fps), longest gap %s":                                 "%d フレームを表示 (%.1f fps), 最大間隔 %s",
		"Ticks %d, dropped %d, composites %d, cancelled %d, errors %d, decode failures %d": "ティック %d, 欠落 %d, 合成 %d, 取消 %d, エラー %d, デコード失敗 %d",
		"Frame cache: %d hits, %d misses, %d evictions":                                  "フレームキャッシュ: ヒット %d, ミス %d, 追い出し %d",
		"no frame was presented":                                                         "表示されたフレームがありません",
		"Last frame saved to %s":                                                         "最後のフレームを %s に保存しました",

		// Probe command
		"Show media properties of files":      "メディアファイルの情報を表示",
		"at least one media file is required": "1つ以上のメディアファイルが必要です",

		// Config command
		"Print the effective configuration as YAML": "有効な設定をYAMLで表示",
		"(defaults)": "(デフォルト)",

		// Version command
		"Show version information": "バージョン情報を表示",
		"dusk version %s":          "dusk バージョン %s",

		// Errors
		"Error: %s":                     "エラー: %s",
		"Interrupted, shutting down...": "中断されました。シャットダウン中...",
	})
}
