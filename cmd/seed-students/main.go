package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Soule73/examena-sub000/internal/config"
	"github.com/Soule73/examena-sub000/internal/database"
	"github.com/Soule73/examena-sub000/internal/logger"
	"github.com/Soule73/examena-sub000/internal/model"
	"github.com/Soule73/examena-sub000/internal/repository"
	"github.com/Soule73/examena-sub000/internal/service"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	studentRepo := repository.NewStudentRepository(pool)
	studentService := service.NewStudentService(studentRepo)

	fmt.Println("=== Seeding 50 Students ===")

	names := []string{
		"Alice Martin", "Bruno Costa", "Chloe Dubois", "David Kim", "Emma Fischer",
		"Farid Benali", "Grace Okafor", "Hugo Moreau", "Ines Lopez", "Jonas Weber",
		"Karim Haddad", "Lea Rousseau", "Marco Ricci", "Nora Lindberg", "Omar Sayed",
		"Paula Santos", "Quentin Girard", "Rania Khalil", "Samuel Osei", "Tara Novak",
		"Umar Farouk", "Valerie Chen", "Wassim Trabelsi", "Xavier Blanc", "Yara Mansour",
		"Zoe Lambert", "Adam Nowak", "Bineta Diallo", "Carlos Mendez", "Dina Petrova",
		"Elias Berg", "Fatou Ndiaye", "Gabriel Silva", "Hana Yoshida", "Ivan Horvat",
		"Jade Leroy", "Kofi Mensah", "Lina Haddad", "Mateo Vargas", "Naomi Tanaka",
		"Oscar Nilsson", "Priya Sharma", "Rachid Amrani", "Sofia Rossi", "Thomas Keller",
		"Uma Patel", "Victor Lund", "Wanda Kowalska", "Yusuf Demir", "Zara Ahmed",
	}

	successCount := 0
	for i, name := range names {
		username := fmt.Sprintf("student%02d", i+1)
		email := fmt.Sprintf("%s@example.edu", strings.ReplaceAll(strings.ToLower(name), " ", "."))

		student := &model.Student{
			Username:     username,
			Name:         name,
			Email:        email,
			PasswordHash: "changeme123", // hashed by the service
		}

		if err := studentService.Create(ctx, student); err != nil {
			fmt.Printf("Error creating student %s (%s): %v\n", student.Name, student.Username, err)
		} else {
			successCount++
			if (i+1)%10 == 0 {
				fmt.Printf("Created %d students...\n", i+1)
			}
		}
	}

	fmt.Printf("\nSeed completed! Successfully added %d/%d students.\n", successCount, len(names))
}
