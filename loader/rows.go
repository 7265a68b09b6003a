package loader

import (
	"tabula/errors"
	"tabula/schema"
)

// IRows 查询结果集的最小读取面
//
// *sql.Rows 天然满足本接口；存储层的自定义包装同样适用。
// 结果集的关闭始终是调用方的责任。
type IRows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Columns() ([]string, error)
}

// LoadRows 吃掉整个结果集，逐行按列名装载
//
// 容忍部分投影：缺席的列保持缺席，描述符未声明的列被丢弃。
func LoadRows(desc *schema.Descriptor, rows IRows) ([]*Record, error) {
	if desc == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeRowShape, "无法读取结果集列信息")
	}

	var records []*Record
	for rows.Next() {
		scanned, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		byName := make(map[string]any, len(cols))
		for i, col := range cols {
			byName[col] = scanned[i]
		}
		rec, err := LoadMap(desc, byName)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// LoadRowsPolymorphic 吃掉整个通用结果集，逐行分发后装载
//
// 投影必须覆盖被查询描述符的完整装载序（通配查询的契约），
// 列名对齐后交给 LoadPolymorphic。
func LoadRowsPolymorphic(queried *schema.Descriptor, rows IRows) ([]*Record, error) {
	if queried == nil {
		return nil, errors.NewError(errors.ErrCodeInvalidInput, "描述符不能为 nil")
	}

	cols, err := rows.Columns()
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeRowShape, "无法读取结果集列信息")
	}
	colIndex := make(map[string]int, len(cols))
	for i, col := range cols {
		colIndex[col] = i
	}

	order := queried.LoadOrder()
	var records []*Record
	for rows.Next() {
		scanned, err := scanRow(rows, len(cols))
		if err != nil {
			return nil, err
		}
		ordered := make([]any, len(order))
		for i, name := range order {
			j, ok := colIndex[name]
			if !ok {
				return nil, errors.NewFieldError(errors.ErrCodeMissingColumn,
					queried.QualifiedSource(), name, "投影缺少装载序要求的列")
			}
			ordered[i] = scanned[j]
		}
		rec, err := LoadPolymorphic(queried, ordered)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func scanRow(rows IRows, width int) ([]any, error) {
	values := make([]any, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, errors.WrapError(err, errors.ErrCodeRowShape, "行扫描失败")
	}
	return values, nil
}
