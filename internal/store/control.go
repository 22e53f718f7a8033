// Package store хранит состояние сцены для двух ролей: черновик и
// переопределения по целям у управляющего экземпляра, отображаемый
// снимок у экрана. Хранилища не потокобезопасны: ими владеет цикл
// событий координатора.
package store

import (
	"sort"

	"github.com/annel0/lightstage/internal/scene"
)

// TargetAll широковещательная цель.
const TargetAll = "all"

// ControlStore состояние управляющего экземпляра.
//
// Снимки неизменяемы: любое редактирование клонирует черновик, меняет
// клон и заменяет указатель. Поэтому отправленный снимок и записанное
// переопределение можно разделять без копирования.
type ControlStore struct {
	draft     *scene.Scene
	active    string
	overrides map[string]*scene.Scene
	known     map[string]struct{}
}

// NewControlStore создаёт хранилище. initial может быть nil (сцена по
// умолчанию); targets заранее известные цели.
func NewControlStore(initial *scene.Scene, targets []string) *ControlStore {
	if initial == nil {
		initial = scene.Default()
	}
	cs := &ControlStore{
		draft:     initial.Clone(),
		active:    TargetAll,
		overrides: make(map[string]*scene.Scene),
		known:     make(map[string]struct{}),
	}
	for _, t := range targets {
		cs.Observe(t)
	}
	return cs
}

// Draft текущий черновик. Вызывающий не должен его изменять.
func (cs *ControlStore) Draft() *scene.Scene { return cs.draft }

// Edit применяет fn к копии черновика. Ошибка fn оставляет черновик прежним.
func (cs *ControlStore) Edit(fn func(*scene.Scene) error) (*scene.Scene, error) {
	next := cs.draft.Clone()
	if err := fn(next); err != nil {
		return cs.draft, err
	}
	cs.draft = next
	return next, nil
}

// ReplaceDraft целиком заменяет черновик (импорт пресета).
func (cs *ControlStore) ReplaceDraft(s *scene.Scene) {
	if s == nil {
		s = scene.Default()
	}
	cs.draft = s
}

// ActiveTarget цель, которой адресованы правки.
func (cs *ControlStore) ActiveTarget() string { return cs.active }

// SelectTarget переключает цель и загружает в черновик её текущее
// состояние (Resolve).
func (cs *ControlStore) SelectTarget(id string) *scene.Scene {
	if id == "" {
		id = TargetAll
	}
	cs.Observe(id)
	cs.active = id
	cs.draft = cs.Resolve(id)
	return cs.draft
}

// Observe запоминает цель (из конфигурации или REQUEST_LIVE).
func (cs *ControlStore) Observe(target string) {
	if target == "" || target == TargetAll {
		return
	}
	cs.known[target] = struct{}{}
}

// Record фиксирует снимок, отправленный цели. Для TargetAll снимок
// становится переопределением и всех известных целей: экран, получивший
// широковещание, показывает именно его.
func (cs *ControlStore) Record(target string, snap *scene.Scene) {
	if target == "" {
		target = TargetAll
	}
	cs.Observe(target)
	cs.overrides[target] = snap
	if target == TargetAll {
		for t := range cs.known {
			cs.overrides[t] = snap
		}
	}
}

// Resolve что должна показывать цель: своё переопределение, иначе
// широковещательное, иначе сцена по умолчанию.
func (cs *ControlStore) Resolve(target string) *scene.Scene {
	if s, ok := cs.overrides[target]; ok && s != nil {
		return s
	}
	if s, ok := cs.overrides[TargetAll]; ok && s != nil {
		return s
	}
	return scene.Default()
}

// Diverged известные цели со своим переопределением, отличным от
// широковещательного снимка, в лексикографическом порядке. Экран такой
// цели тоже принимает LIVE_STATE{all}, поэтому после ответа all ему
// нужно вернуть его собственный снимок.
func (cs *ControlStore) Diverged() []string {
	all := cs.overrides[TargetAll]
	var out []string
	for t := range cs.known {
		if s, ok := cs.overrides[t]; ok && s != nil && s != all {
			out = append(out, t)
		}
	}
	sort.Strings(out)
	return out
}

// Targets известные цели в лексикографическом порядке.
func (cs *ControlStore) Targets() []string {
	out := make([]string, 0, len(cs.known))
	for t := range cs.known {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// ReplaceAll готовит массовую операцию: новая карта переопределений, где
// TargetAll и каждая известная цель указывают на snap. Возвращённая
// функция применяет карту и делает snap черновиком; до её вызова
// хранилище не меняется.
func (cs *ControlStore) ReplaceAll(snap *scene.Scene) (commit func()) {
	next := make(map[string]*scene.Scene, len(cs.known)+1)
	next[TargetAll] = snap
	for t := range cs.known {
		next[t] = snap
	}
	return func() {
		cs.overrides = next
		cs.draft = snap
	}
}

// Overrides копия карты переопределений.
func (cs *ControlStore) Overrides() map[string]*scene.Scene {
	out := make(map[string]*scene.Scene, len(cs.overrides))
	for k, v := range cs.overrides {
		out[k] = v
	}
	return out
}
