package database

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"yqhp/common/config"
	"yqhp/common/logger"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/dbresolver"
)

var db *gorm.DB

func mysqlDSN(cfg *config.DatabaseConfig, host string) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=%s&parseTime=True&loc=Local",
		cfg.Username,
		cfg.Password,
		host,
		cfg.Database,
		cfg.Charset,
	)
}

func postgresDSN(cfg *config.DatabaseConfig, host string, port int) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		host,
		port,
		cfg.Username,
		cfg.Password,
		cfg.Database,
	)
}

// dialectors 主库与只读副本的方言
func dialectors(cfg *config.DatabaseConfig) (gorm.Dialector, []gorm.Dialector, error) {
	var (
		primary  gorm.Dialector
		replicas []gorm.Dialector
	)
	switch cfg.Driver {
	case "mysql":
		primary = mysql.Open(mysqlDSN(cfg, fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)))
		for _, r := range cfg.Replicas {
			replicas = append(replicas, mysql.Open(mysqlDSN(cfg, r)))
		}
	case "postgres":
		primary = postgres.Open(postgresDSN(cfg, cfg.Host, cfg.Port))
		for _, r := range cfg.Replicas {
			host, port := r, cfg.Port
			if h, p, err := net.SplitHostPort(r); err == nil {
				host = h
				if n, err := strconv.Atoi(p); err == nil {
					port = n
				}
			}
			replicas = append(replicas, postgres.Open(postgresDSN(cfg, host, port)))
		}
	default:
		return nil, nil, fmt.Errorf("不支持的数据库驱动: %s", cfg.Driver)
	}
	return primary, replicas, nil
}

// Open 按配置打开数据库连接，唯一键冲突翻译为 gorm.ErrDuplicatedKey
func Open(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	primary, replicas, err := dialectors(cfg)
	if err != nil {
		return nil, err
	}
	return OpenDialector(primary, replicas, cfg)
}

// OpenDialector 使用指定方言打开连接，测试中传入 sqlite
func OpenDialector(primary gorm.Dialector, replicas []gorm.Dialector, cfg *config.DatabaseConfig) (*gorm.DB, error) {
	conn, err := gorm.Open(primary, &gorm.Config{
		Logger:         logger.NewGormLogger(cfg.LogLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if len(replicas) > 0 {
		// 批量扫描走只读副本，状态迁移写主库
		if err := conn.Use(dbresolver.Register(dbresolver.Config{
			Replicas: replicas,
			Policy:   dbresolver.RandomPolicy{},
		})); err != nil {
			return nil, fmt.Errorf("注册只读副本失败: %w", err)
		}
	}

	sqlDB, err := conn.DB()
	if err != nil {
		return nil, err
	}

	// 设置连接池参数
	if cfg.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	}
	return conn, nil
}

// Init 初始化全局数据库连接
func Init(cfg *config.DatabaseConfig) error {
	conn, err := Open(cfg)
	if err != nil {
		return err
	}
	db = conn
	return nil
}

// GetDB 获取数据库连接
func GetDB() *gorm.DB {
	return db
}

// Close 关闭数据库连接
func Close() error {
	if db != nil {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.Close()
	}
	return nil
}
