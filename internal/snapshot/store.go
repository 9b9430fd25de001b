package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileStore хранит сжатые снапшоты: один файл на камеру, адресуемый
// именем камеры. Запись атомарна: данные пишутся во временный файл и
// заменяют старый через rename.
type FileStore struct {
	baseDir string
}

// NewFileStore создает хранилище снапшотов в указанной директории
func NewFileStore(baseDir string) (*FileStore, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию снапшотов: %w", err)
	}
	return &FileStore{baseDir: baseDir}, nil
}

// FileName возвращает имя файла снапшота для камеры
func FileName(chamberName string) string {
	return fmt.Sprintf("chamber_%s.snap", chamberName)
}

// Save атомарно записывает файл снапшота
func (s *FileStore) Save(file string, data []byte) error {
	fullPath := filepath.Join(s.baseDir, file)
	tmpPath := fullPath + ".tmp"

	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("запись tmp-файла снапшота: %w", err)
	}
	if err := os.Rename(tmpPath, fullPath); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("замена файла снапшота: %w", err)
	}
	return nil
}

// Load читает файл снапшота
func (s *FileStore) Load(file string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.baseDir, file))
	if err != nil {
		return nil, fmt.Errorf("чтение файла снапшота %s: %w", file, err)
	}
	return data, nil
}

// Delete удаляет файл снапшота; отсутствие файла ошибкой не считается
func (s *FileStore) Delete(file string) error {
	err := os.Remove(filepath.Join(s.baseDir, file))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("удаление файла снапшота %s: %w", file, err)
	}
	return nil
}
