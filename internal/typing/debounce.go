package typing

import (
	"sync"
	"time"
)

// debounceState はDebouncerの内部状態。
type debounceState int

const (
	// stateIdle は入力開始前。まだ何も送信していない。
	stateIdle debounceState = iota
	// statePending は入力中シグナル送信済みで、静止期間タイマーが作動中。
	statePending
	// stateFired は静止期間が経過しクリアシグナルを送信済み。
	stateFired
)

// Debouncer はキーストロークを入力中シグナルに変換する状態機械。
//
//	idle --Keystroke--> pending（emit(true)、タイマー起動）
//	pending --Keystroke--> pending（タイマー再起動）
//	pending --タイマー満了--> fired（emit(false)）
//	fired --Keystroke--> pending（emit(true)、タイマー起動）
//
// 静止期間（quiet）の間キーストロークが無いと自動的にクリアされる。
// メッセージ送信時や切断時はFlushで即時クリアする。
type Debouncer struct {
	mu    sync.Mutex
	state debounceState
	timer *time.Timer
	quiet time.Duration
	emit  func(isTyping bool)
}

// NewDebouncer はDebouncerを生成する。
// quietは静止期間、emitはシグナル送信コールバック。
// emitはDebouncer内部のロックを保持したまま呼ばれることはない。
func NewDebouncer(quiet time.Duration, emit func(isTyping bool)) *Debouncer {
	return &Debouncer{
		state: stateIdle,
		quiet: quiet,
		emit:  emit,
	}
}

// Keystroke はキー入力を通知する。
// idle/firedからの遷移時のみemit(true)を送信し、連続入力中は
// タイマーの再起動のみ行う。
func (d *Debouncer) Keystroke() {
	d.mu.Lock()

	switch d.state {
	case statePending:
		d.timer.Reset(d.quiet)
		d.mu.Unlock()
		return
	case stateIdle, stateFired:
		d.state = statePending
		d.timer = time.AfterFunc(d.quiet, d.expire)
		d.mu.Unlock()
		d.emit(true)
	}
}

// expire は静止期間満了時にタイマーから呼ばれる。
func (d *Debouncer) expire() {
	d.mu.Lock()
	if d.state != statePending {
		d.mu.Unlock()
		return
	}
	d.state = stateFired
	d.mu.Unlock()

	d.emit(false)
}

// Flush は入力中シグナルを即時クリアする。
// メッセージ送信時や画面離脱時に使用する。pending状態の場合のみ
// emit(false)を送信し、それ以外では何もしない。
func (d *Debouncer) Flush() {
	d.mu.Lock()
	if d.state != statePending {
		d.mu.Unlock()
		return
	}
	d.timer.Stop()
	d.state = stateIdle
	d.mu.Unlock()

	d.emit(false)
}

// Stop はタイマーを停止し、以降のシグナル送信を行わない。
// 切断処理の最後に呼ぶ。Flushと異なりemitは呼ばれない。
func (d *Debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}
	d.state = stateIdle
}
