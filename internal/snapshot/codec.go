// Package snapshot реализует снятие и восстановление полного блочного
// состояния ограниченного региона: упорядоченная последовательность
// записей блоков, бинарная сериализация и zstd-сжатие.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"

	"github.com/annelo/go-chamber-server/internal/geom"
	"github.com/annelo/go-chamber-server/internal/worldinterfaces"
)

// BlockRecord — одна запись снапшота: дескриптор состояния блока и
// необязательные структурированные данные. Payload пуст для блоков без
// вспомогательного состояния и не раздувает запись.
type BlockRecord struct {
	State   string
	Payload map[string]string
}

// Snapshot — упорядоченная последовательность записей блоков бокса.
// Порядок значим: обход бокса фиксирован (geom.Box.ForEach), поэтому
// индекс i всегда соответствует одному и тому же смещению внутри бокса.
// Инвариант: len(Records) == объём бокса камеры.
type Snapshot struct {
	Records []BlockRecord
}

// CorruptionError сообщает о повреждённом снапшоте: ошибка декодирования
// либо несовпадение длины последовательности с объёмом бокса. Повреждённый
// снапшот никогда не применяется частично.
type CorruptionError struct {
	Reason string
}

func (e CorruptionError) Error() string {
	return fmt.Sprintf("снапшот повреждён: %s", e.Reason)
}

// RestoreError сообщает об отказе записи блока после начала
// восстановления. Камера после такой ошибки находится в неопределённом
// состоянии и требует внимания оператора; автоматический откат не
// выполняется.
type RestoreError struct {
	Index int
	Pos   geom.BlockPos
	Err   error
}

func (e RestoreError) Error() string {
	return fmt.Sprintf("ошибка записи блока %s (запись %d): %v", e.Pos, e.Index, e.Err)
}

func (e RestoreError) Unwrap() error { return e.Err }

// Формат файла снапшота: сигнатура, версия и счётчик записей, затем
// записи с length-префиксами; весь поток сжат zstd. Формат внутренний и
// обязан лишь точно проходить round-trip.
const (
	codecMagic   = "CSNP"
	codecVersion = uint16(1)
)

// Encode сериализует снапшот в сжатый байтовый поток
func Encode(snap *Snapshot) ([]byte, error) {
	buf := new(bytes.Buffer)

	buf.WriteString(codecMagic)
	binary.Write(buf, binary.LittleEndian, codecVersion)
	binary.Write(buf, binary.LittleEndian, uint16(0)) // Флаги
	binary.Write(buf, binary.LittleEndian, uint32(len(snap.Records)))

	for i := range snap.Records {
		rec := &snap.Records[i]
		if err := writeString16(buf, rec.State); err != nil {
			return nil, fmt.Errorf("запись %d: %w", i, err)
		}

		if len(rec.Payload) > 65535 {
			return nil, fmt.Errorf("запись %d: слишком много свойств (%d)", i, len(rec.Payload))
		}
		binary.Write(buf, binary.LittleEndian, uint16(len(rec.Payload)))
		for k, v := range rec.Payload {
			if err := writeString16(buf, k); err != nil {
				return nil, fmt.Errorf("запись %d, ключ %q: %w", i, k, err)
			}
			valBytes := []byte(v)
			binary.Write(buf, binary.LittleEndian, uint32(len(valBytes)))
			buf.Write(valBytes)
		}
	}

	// Сжимаем: снятые регионы бывают большими (десятки тысяч блоков)
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("инициализация zstd: %w", err)
	}
	defer enc.Close()

	return enc.EncodeAll(buf.Bytes(), nil), nil
}

// Decode распаковывает и разбирает снапшот. Любая ошибка разбора
// возвращается как CorruptionError.
func Decode(data []byte) (*Snapshot, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("инициализация zstd: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, CorruptionError{Reason: fmt.Sprintf("распаковка: %v", err)}
	}

	buf := bytes.NewReader(raw)

	magic := make([]byte, 4)
	if _, err := io.ReadFull(buf, magic); err != nil || string(magic) != codecMagic {
		return nil, CorruptionError{Reason: "неверная сигнатура"}
	}

	var version, flags uint16
	if err := binary.Read(buf, binary.LittleEndian, &version); err != nil {
		return nil, CorruptionError{Reason: "обрыв заголовка"}
	}
	if version != codecVersion {
		return nil, CorruptionError{Reason: fmt.Sprintf("неподдерживаемая версия %d", version)}
	}
	if err := binary.Read(buf, binary.LittleEndian, &flags); err != nil {
		return nil, CorruptionError{Reason: "обрыв заголовка"}
	}

	var count uint32
	if err := binary.Read(buf, binary.LittleEndian, &count); err != nil {
		return nil, CorruptionError{Reason: "обрыв счётчика записей"}
	}

	snap := &Snapshot{Records: make([]BlockRecord, 0, count)}
	for i := uint32(0); i < count; i++ {
		state, err := readString16(buf)
		if err != nil {
			return nil, CorruptionError{Reason: fmt.Sprintf("запись %d: %v", i, err)}
		}

		var propCount uint16
		if err := binary.Read(buf, binary.LittleEndian, &propCount); err != nil {
			return nil, CorruptionError{Reason: fmt.Sprintf("запись %d: обрыв счётчика свойств", i)}
		}

		rec := BlockRecord{State: state}
		if propCount > 0 {
			rec.Payload = make(map[string]string, propCount)
			for j := uint16(0); j < propCount; j++ {
				key, err := readString16(buf)
				if err != nil {
					return nil, CorruptionError{Reason: fmt.Sprintf("запись %d: %v", i, err)}
				}
				var valLen uint32
				if err := binary.Read(buf, binary.LittleEndian, &valLen); err != nil {
					return nil, CorruptionError{Reason: fmt.Sprintf("запись %d: обрыв длины значения", i)}
				}
				val := make([]byte, valLen)
				if _, err := io.ReadFull(buf, val); err != nil {
					return nil, CorruptionError{Reason: fmt.Sprintf("запись %d: обрыв значения", i)}
				}
				rec.Payload[key] = string(val)
			}
		}
		snap.Records = append(snap.Records, rec)
	}

	return snap, nil
}

// Collect читает состояние всех блоков бокса в фиксированном порядке.
// Чтение живого мира — вызывать только на контексте, владеющем регионом.
func Collect(world worldinterfaces.BlockAccess, worldName string, box geom.Box) (*Snapshot, error) {
	snap := &Snapshot{Records: make([]BlockRecord, 0, box.Volume())}
	var firstErr error
	box.ForEach(func(p geom.BlockPos) {
		if firstErr != nil {
			return
		}
		st, err := world.BlockAt(geom.Location{World: worldName, Pos: p})
		if err != nil {
			firstErr = fmt.Errorf("чтение блока %s: %w", p, err)
			return
		}
		snap.Records = append(snap.Records, BlockRecord{State: st.State, Payload: st.Payload})
	})
	if firstErr != nil {
		return nil, firstErr
	}
	return snap, nil
}

// Apply записывает все блоки снапшота в том же фиксированном порядке.
// Длина последовательности проверяется до первой мутации: несовпадение с
// объёмом бокса — ошибка повреждения, мир остаётся нетронутым. Отказ
// записи после начала возвращается как RestoreError без отката.
// Вызывать только на контексте, владеющем регионом.
func Apply(world worldinterfaces.BlockAccess, worldName string, box geom.Box, snap *Snapshot) error {
	if int64(len(snap.Records)) != box.Volume() {
		return CorruptionError{Reason: fmt.Sprintf(
			"длина последовательности %d не равна объёму бокса %d", len(snap.Records), box.Volume())}
	}

	idx := 0
	var failed *RestoreError
	box.ForEach(func(p geom.BlockPos) {
		if failed != nil {
			return
		}
		rec := snap.Records[idx]
		err := world.SetBlockAt(geom.Location{World: worldName, Pos: p}, worldinterfaces.BlockState{
			State:   rec.State,
			Payload: rec.Payload,
		})
		if err != nil {
			failed = &RestoreError{Index: idx, Pos: p, Err: err}
			return
		}
		idx++
	})
	if failed != nil {
		return *failed
	}
	return nil
}

func writeString16(buf *bytes.Buffer, s string) error {
	b := []byte(s)
	if len(b) > 65535 {
		return fmt.Errorf("строка длиннее 65535 байт")
	}
	binary.Write(buf, binary.LittleEndian, uint16(len(b)))
	buf.Write(b)
	return nil
}

func readString16(buf *bytes.Reader) (string, error) {
	var n uint16
	if err := binary.Read(buf, binary.LittleEndian, &n); err != nil {
		return "", fmt.Errorf("обрыв длины строки")
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(buf, b); err != nil {
		return "", fmt.Errorf("обрыв строки")
	}
	return string(b), nil
}
